package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mwantia/comicshelf/internal/library"
)

type folderPathReq struct {
	Path string `json:"path"`
}

type relocateReq struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func (h *Handler) scan(c *gin.Context) {
	if err := h.Library.StartScan(c.Request.Context(), c.Query("folder")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) progress(c *gin.Context) {
	c.JSON(http.StatusOK, h.Library.Progress())
}

func (h *Handler) cleanup(c *gin.Context) {
	n, err := h.Library.Cleanup(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"cleaned_count": n})
}

func (h *Handler) cleanCoverCache(c *gin.Context) {
	n, err := h.Library.PruneCoverCache(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"deleted_files": n})
}

func (h *Handler) clearAllData(c *gin.Context) {
	if err := h.Library.ClearAll(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) syncOnline(c *gin.Context) {
	var payload library.OnlinePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "no data received")
		return
	}
	res, err := h.Library.SyncOnline(c.Request.Context(), payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"removed": res.Removed, "updated": res.Updated})
}

func (h *Handler) getSettings(c *gin.Context) {
	folders, err := h.Library.ManagedFolders()
	if err != nil {
		h.fail(c, err)
		return
	}
	if folders == nil {
		folders = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"managed_folders": folders})
}

func (h *Handler) addManagedFolder(c *gin.Context) {
	var req folderPathReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		badRequest(c, "path required")
		return
	}
	added, err := h.Library.AddManagedFolder(c.Request.Context(), req.Path)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !added {
		c.JSON(http.StatusOK, gin.H{"status": "info", "message": "folder already managed"})
		return
	}
	success(c, gin.H{"message": "folder added, scanning in background"})
}

func (h *Handler) removeManagedFolder(c *gin.Context) {
	var req folderPathReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		badRequest(c, "path required")
		return
	}
	n, err := h.Library.RemoveManagedFolder(c.Request.Context(), req.Path)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"released_count": n})
}

func (h *Handler) relocateFolder(c *gin.Context) {
	var req relocateReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OldPath == "" || req.NewPath == "" {
		badRequest(c, "old_path and new_path required")
		return
	}
	n, err := h.Library.RelocateFolder(c.Request.Context(), req.OldPath, req.NewPath)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"updated_count": n})
}
