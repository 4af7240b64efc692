package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tubeshelf/internal/domain"
)

type presetRequest struct {
	Name      string `json:"name" binding:"required"`
	Format    string `json:"format"`
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audioOnly"`
	Subtitles bool   `json:"subtitles"`
}

type createBatchRequest struct {
	Name     string   `json:"name"`
	PresetID *int64   `json:"presetId"`
	VideoIDs []string `json:"videoIds" binding:"required"`
}

func (h *Handler) listPresets(c *gin.Context) {
	presets, err := h.batches.ListPresets(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]PresetResponse, len(presets))
	for i := range presets {
		resp[i] = presetToResponse(presets[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	preset := &domain.QualityPreset{
		Name:      req.Name,
		Format:    req.Format,
		Quality:   req.Quality,
		AudioOnly: req.AudioOnly,
		Subtitles: req.Subtitles,
	}
	if err := h.batches.CreatePreset(c.Request.Context(), preset); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, presetToResponse(*preset))
}

func (h *Handler) setDefaultPreset(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.batches.SetDefaultPreset(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := h.batches.CreateBatch(c.Request.Context(), req.Name, req.PresetID, req.VideoIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.queue.Enqueue(batch.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, batchToResponse(*batch))
}

func (h *Handler) listBatches(c *gin.Context) {
	batches, err := h.batches.ListBatches(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]BatchResponse, len(batches))
	for i := range batches {
		resp[i] = batchToResponse(batches[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getBatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	batch, err := h.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchToResponse(*batch))
}
