package http

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/storage"
)

const archiveURLExpiry = 15 * time.Minute

type createDownloadRequest struct {
	VideoID       string   `json:"videoId" binding:"required"`
	Format        string   `json:"format"`
	Quality       string   `json:"quality"`
	AudioOnly     bool     `json:"audioOnly"`
	Subtitles     bool     `json:"subtitles"`
	SaveMetadata  bool     `json:"saveMetadata"`
	TranscodeArgs []string `json:"transcodeArgs"`
}

func (h *Handler) createDownload(c *gin.Context) {
	var req createDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	download, err := h.manager.StartDownload(c.Request.Context(), req.VideoID, domain.DownloadOptions{
		Format:        strings.ToLower(strings.TrimSpace(req.Format)),
		Quality:       strings.ToLower(strings.TrimSpace(req.Quality)),
		AudioOnly:     req.AudioOnly,
		Subtitles:     req.Subtitles,
		SaveMetadata:  req.SaveMetadata,
		TranscodeArgs: req.TranscodeArgs,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, downloadToResponse(*download))
}

func (h *Handler) listDownloads(c *gin.Context) {
	var (
		downloads []domain.Download
		err       error
	)
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		var statuses []domain.DownloadStatus
		for _, s := range strings.Split(raw, ",") {
			status := domain.DownloadStatus(strings.TrimSpace(s))
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid status %q", s)})
				return
			}
			statuses = append(statuses, status)
		}
		downloads, err = h.downloads.ListByStatuses(c.Request.Context(), statuses...)
	} else {
		downloads, err = h.downloads.ListDownloads(c.Request.Context())
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]DownloadResponse, len(downloads))
	for i := range downloads {
		resp[i] = downloadToResponse(downloads[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getDownload(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	download, err := h.downloads.GetDownload(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, downloadToResponse(*download))
}

func (h *Handler) cancelDownload(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	download, err := h.manager.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, downloadToResponse(*download))
}

func (h *Handler) deleteDownload(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	deleteFile, err := strconv.ParseBool(c.DefaultQuery("delete_file", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flag delete_file"})
		return
	}

	download, err := h.downloads.GetDownload(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var warnings []string
	if !download.Status.IsTerminal() {
		if _, err := h.manager.Cancel(c.Request.Context(), id); err != nil {
			warnings = append(warnings, fmt.Sprintf("cancel download: %v", err))
		}
	}

	if deleteFile {
		if download.FilePath != "" {
			if err := os.Remove(download.FilePath); err != nil && !os.IsNotExist(err) {
				warnings = append(warnings, fmt.Sprintf("remove local file: %v", err))
			}
		}
		if download.ArchiveLocation != "" && h.storage != nil {
			if bucket, key, err := storage.ParseLocation(download.ArchiveLocation); err != nil {
				warnings = append(warnings, err.Error())
			} else {
				remoteCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
				defer cancel()
				if err := h.storage.DeletePrefix(remoteCtx, bucket, key); err != nil {
					warnings = append(warnings, fmt.Sprintf("delete archived copy: %v", err))
				}
			}
		}
	}

	if err := h.downloads.DeleteDownload(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"deleted": id}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) archiveURL(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	download, err := h.downloads.GetDownload(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if download.ArchiveLocation == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "download has not been archived"})
		return
	}

	bucket, key, err := storage.ParseLocation(download.ArchiveLocation)
	if err != nil {
		h.writeError(c, err)
		return
	}
	url, err := h.storage.PresignURL(c.Request.Context(), bucket, key, archiveURLExpiry)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       url,
		"expiresAt": formatTime(time.Now().Add(archiveURLExpiry)),
	})
}
