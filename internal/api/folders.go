package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mwantia/comicshelf/internal/library"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

type createFolderReq struct {
	Folder *library.FolderSpec `json:"folder"`
}

type updateFolderReq struct {
	Name         *string   `json:"name"`
	Auto         *bool     `json:"auto"`
	NameIncludes *[]string `json:"name_includes"`
	TagIncludes  *[]string `json:"tag_includes"`
}

func (h *Handler) listFolders(c *gin.Context) {
	folders, err := h.Library.Folders(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]folderView, 0, len(folders))
	for i := range folders {
		views = append(views, newFolderView(&folders[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) createFolder(c *gin.Context) {
	var req createFolderReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Folder == nil || req.Folder.Name == "" {
		badRequest(c, "folder with a name required")
		return
	}
	folder, err := h.Library.CreateFolder(c.Request.Context(), *req.Folder)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "folder": newFolderView(folder)})
}

func (h *Handler) updateFolder(c *gin.Context) {
	var req updateFolderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	patch := store.FolderPatch{
		Name:         req.Name,
		Auto:         req.Auto,
		NameIncludes: req.NameIncludes,
		TagIncludes:  req.TagIncludes,
	}
	folder, err := h.Library.UpdateFolder(c.Request.Context(), c.Param("name"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"folder": newFolderView(folder)})
}

func (h *Handler) deleteFolder(c *gin.Context) {
	if err := h.Library.DeleteFolder(c.Request.Context(), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}
