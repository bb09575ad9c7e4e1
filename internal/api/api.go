// Package api exposes the library over HTTP.
package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mwantia/comicshelf/internal/library"
	"github.com/mwantia/comicshelf/pkg/archive"
	"github.com/mwantia/comicshelf/pkg/db/store"
	"github.com/mwantia/comicshelf/pkg/log"
)

type Handler struct {
	Library *library.Library
	Log     log.LoggerService
}

func NewHandler(lib *library.Library, logger log.LoggerService) *Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Handler{Library: lib, Log: logger}
}

// NewRouter builds the engine serving the API below /api, cover files below
// /covers and, when staticDir is set, the web frontend.
func NewRouter(h *Handler, staticDir string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())

	h.RegisterRoutes(router.Group("/api"))
	router.Static("/covers", h.Library.Covers().Root())

	if staticDir != "" {
		router.NoRoute(serveStatic(staticDir))
	}
	return router
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", h.ping)

	rg.POST("/scan", h.scan)
	rg.GET("/scan/progress", h.progress)
	rg.POST("/cleanup", h.cleanup)
	rg.POST("/clean_cover_cache", h.cleanCoverCache)
	rg.POST("/clear_all_data", h.clearAllData)
	rg.POST("/tampermonkey/sync", h.syncOnline)

	rg.GET("/comics", h.listComics)
	rg.GET("/comics/stats", h.stats)
	rg.POST("/comics/favorite", h.setFavorite)
	rg.POST("/comics/delete_full", h.deleteComics)
	rg.POST("/comics/folder", h.assignFolder)
	rg.POST("/comics/folder/remove_all", h.removeFromAllFolders)
	rg.POST("/comics/merge", h.mergeComics)

	rg.GET("/comic/pages", h.pages)
	rg.GET("/comic/page", h.page)
	rg.POST("/comic/progress", h.updateProgress)
	rg.GET("/comic/:title", h.getComic)
	rg.DELETE("/comic/:title", h.deleteComic)
	rg.PUT("/comic/:title/display_name", h.setDisplayName)
	rg.POST("/comic/:title/tags", h.setTag)

	rg.GET("/folders", h.listFolders)
	rg.POST("/folders", h.createFolder)
	rg.PUT("/folders/:name", h.updateFolder)
	rg.DELETE("/folders/:name", h.deleteFolder)

	rg.GET("/settings", h.getSettings)
	rg.POST("/settings/folders", h.addManagedFolder)
	rg.DELETE("/settings/folders", h.removeManagedFolder)
	rg.POST("/settings/folders/relocate", h.relocateFolder)
}

func (h *Handler) ping(c *gin.Context) {
	if err := h.Library.Health(c.Request.Context()); err != nil {
		h.Log.Warn("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Log.Debug("%s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// statusOf maps library and store errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, library.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalid), errors.Is(err, library.ErrInvalidPath),
		errors.Is(err, archive.ErrUnsupported), errors.Is(err, archive.ErrCorruptArchive),
		errors.Is(err, archive.ErrNoImages):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"status": "error", "message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": message})
}

func success(c *gin.Context, extra gin.H) {
	body := gin.H{"status": "success"}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func serveStatic(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "not found"})
			return
		}
		target := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			c.File(target)
			return
		}
		c.File(filepath.Join(dir, "index.html"))
	}
}
