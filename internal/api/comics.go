package api

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mwantia/comicshelf/internal/library"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

type titlesReq struct {
	Titles []string `json:"titles"`
}

type favoriteReq struct {
	Titles   []string `json:"titles"`
	Favorite *bool    `json:"favorite"`
}

type displayNameReq struct {
	DisplayName string `json:"displayName"`
}

type tagReq struct {
	Action string `json:"action"`
	Tag    string `json:"tag"`
}

type assignReq struct {
	Titles []string `json:"titles"`
	Folder string   `json:"folder"`
}

type mergeReq struct {
	OnlineTitle string `json:"online_comic_title"`
	LocalTitle  string `json:"local_comic_title"`
}

type progressReq struct {
	Path string `json:"path"`
	Page *int   `json:"page"`
}

func (h *Handler) listComics(c *gin.Context) {
	page := max(parseInt(c.Query("page"), 1), 1)
	limit := parseInt(c.Query("limit"), 30)
	if limit <= 0 {
		limit = 30
	}

	query := store.ComicQuery{
		Search:    strings.TrimSpace(c.Query("search")),
		Filter:    store.ComicFilter(c.DefaultQuery("filter", string(store.FilterAll))),
		SortBy:    c.DefaultQuery("sort_by", "date"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}
	comics, total, err := h.Library.ListComics(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]comicView, 0, len(comics))
	for i := range comics {
		views = append(views, newComicView(&comics[i]))
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, gin.H{
		"comics":       views,
		"total_comics": total,
		"page":         page,
		"limit":        limit,
	})
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Library.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getComic(c *gin.Context) {
	comic, err := h.Library.Comic(c.Request.Context(), c.Param("title"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newComicView(comic))
}

func (h *Handler) deleteComic(c *gin.Context) {
	title := c.Param("title")
	n, err := h.Library.DeleteComics(c.Request.Context(), []string{title})
	if err != nil {
		h.fail(c, err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "comic not found"})
		return
	}
	success(c, gin.H{"message": "deleted '" + title + "'"})
}

func (h *Handler) setDisplayName(c *gin.Context) {
	var req displayNameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := h.Library.SetDisplayName(c.Request.Context(), c.Param("title"), req.DisplayName); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) setTag(c *gin.Context) {
	var req tagReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Action == "" || strings.TrimSpace(req.Tag) == "" {
		badRequest(c, "action and tag required")
		return
	}
	err := h.Library.SetTag(c.Request.Context(), c.Param("title"), req.Tag, library.TagAction(req.Action))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) setFavorite(c *gin.Context) {
	var req favoriteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "titles list required")
		return
	}
	if err := h.Library.SetFavorite(c.Request.Context(), req.Titles, req.Favorite); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) deleteComics(c *gin.Context) {
	var req titlesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "titles list required")
		return
	}
	n, err := h.Library.DeleteComics(c.Request.Context(), req.Titles)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"deleted_count": n})
}

func (h *Handler) assignFolder(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Folder == "" {
		badRequest(c, "titles and folder required")
		return
	}
	if err := h.Library.AssignFolder(c.Request.Context(), req.Titles, req.Folder); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) removeFromAllFolders(c *gin.Context) {
	var req titlesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "titles list required")
		return
	}
	if err := h.Library.RemoveFromAllFolders(c.Request.Context(), req.Titles); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) mergeComics(c *gin.Context) {
	var req mergeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OnlineTitle == "" || req.LocalTitle == "" {
		badRequest(c, "online_comic_title and local_comic_title required")
		return
	}
	if err := h.Library.MergeComics(c.Request.Context(), req.OnlineTitle, req.LocalTitle); err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"message": "merged '" + req.LocalTitle + "' into '" + req.OnlineTitle + "'"})
}

func (h *Handler) pages(c *gin.Context) {
	pages, err := h.Library.Pages(c.Request.Context(), c.Query("path"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pages)
}

func (h *Handler) page(c *gin.Context) {
	name := c.Query("page")
	data, err := h.Library.Page(c.Request.Context(), c.Query("path"), name)
	if err != nil {
		h.fail(c, err)
		return
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) updateProgress(c *gin.Context) {
	var req progressReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.Page == nil {
		badRequest(c, "path and page required")
		return
	}
	if err := h.Library.UpdateProgress(c.Request.Context(), req.Path, *req.Page); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}
