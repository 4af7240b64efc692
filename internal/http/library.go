package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tubeshelf/internal/domain"
)

type lookupVideoRequest struct {
	VideoID string `json:"videoId" binding:"required"`
}

type collectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

type collectionVideoRequest struct {
	VideoID string `json:"videoId" binding:"required"`
}

func (h *Handler) listVideos(c *gin.Context) {
	videos, err := h.library.ListVideos(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, videosToResponse(videos))
}

func (h *Handler) getVideo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	video, err := h.library.GetVideo(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, videoToResponse(*video))
}

func (h *Handler) lookupVideo(c *gin.Context) {
	var req lookupVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	video, err := h.library.LookupVideo(c.Request.Context(), req.VideoID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, videoToResponse(*video))
}

func (h *Handler) deleteVideo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.library.DeleteVideo(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) listCollections(c *gin.Context) {
	collections, err := h.library.ListCollections(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]CollectionResponse, len(collections))
	for i := range collections {
		resp[i] = collectionToResponse(collections[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createCollection(c *gin.Context) {
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	collection, err := h.library.CreateCollection(c.Request.Context(), req.Name, req.Description, req.Position)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collectionToResponse(*collection))
}

func (h *Handler) updateCollection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collection := &domain.Collection{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Position:    req.Position,
	}
	if err := h.library.UpdateCollection(c.Request.Context(), collection); err != nil {
		h.writeError(c, err)
		return
	}
	updated, err := h.library.GetCollection(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, collectionToResponse(*updated))
}

func (h *Handler) deleteCollection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.library.DeleteCollection(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) listCollectionVideos(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	videos, err := h.library.ListCollectionVideos(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, videosToResponse(videos))
}

func (h *Handler) addCollectionVideo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req collectionVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.library.AddToCollection(c.Request.Context(), id, req.VideoID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeCollectionVideo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.library.RemoveFromCollection(c.Request.Context(), id, c.Param("videoId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
