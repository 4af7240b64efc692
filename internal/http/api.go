package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/events"
	"tubeshelf/internal/repository"
	"tubeshelf/internal/service"
	"tubeshelf/internal/storage"
)

// DownloadManager is the part of the download manager the API drives.
type DownloadManager interface {
	StartDownload(ctx context.Context, videoID string, opts domain.DownloadOptions) (*domain.Download, error)
	Cancel(ctx context.Context, taskID int64) (*domain.Download, error)
	ActiveDownloads() int
}

// BatchQueue starts batches in the background.
type BatchQueue interface {
	Enqueue(batchID int64) error
}

// Config carries the dependencies of the HTTP handler.
type Config struct {
	Downloads service.DownloadService
	Library   service.LibraryService
	Batches   service.BatchService
	Users     service.UserService
	Manager   DownloadManager
	Queue     BatchQueue
	Broker    *events.Broker
	Storage   storage.Service
	Bucket    string
	Logger    *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	downloads service.DownloadService
	library   service.LibraryService
	batches   service.BatchService
	users     service.UserService
	manager   DownloadManager
	queue     BatchQueue
	broker    *events.Broker
	storage   storage.Service
	bucket    string
	logger    *logrus.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Handler{
		downloads: cfg.Downloads,
		library:   cfg.Library,
		batches:   cfg.Batches,
		users:     cfg.Users,
		manager:   cfg.Manager,
		queue:     cfg.Queue,
		broker:    cfg.Broker,
		storage:   cfg.Storage,
		bucket:    cfg.Bucket,
		logger:    cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
	}

	protected := api.Group("")
	protected.Use(h.authMiddleware())
	{
		protected.GET("/auth/me", h.me)

		protected.POST("/downloads", h.createDownload)
		protected.GET("/downloads", h.listDownloads)
		protected.GET("/downloads/:id", h.getDownload)
		protected.POST("/downloads/:id/cancel", h.cancelDownload)
		protected.DELETE("/downloads/:id", h.deleteDownload)
		protected.GET("/downloads/:id/archive-url", h.archiveURL)
		protected.GET("/ws/progress", h.progressSocket)

		protected.GET("/videos", h.listVideos)
		protected.GET("/videos/:id", h.getVideo)
		protected.POST("/videos/lookup", h.lookupVideo)
		protected.DELETE("/videos/:id", h.deleteVideo)

		protected.GET("/collections", h.listCollections)
		protected.POST("/collections", h.createCollection)
		protected.PUT("/collections/:id", h.updateCollection)
		protected.DELETE("/collections/:id", h.deleteCollection)
		protected.GET("/collections/:id/videos", h.listCollectionVideos)
		protected.POST("/collections/:id/videos", h.addCollectionVideo)
		protected.DELETE("/collections/:id/videos/:videoId", h.removeCollectionVideo)

		protected.GET("/presets", h.listPresets)
		protected.POST("/presets", h.createPreset)
		protected.PUT("/presets/:id/default", h.setDefaultPreset)

		protected.POST("/batches", h.createBatch)
		protected.GET("/batches", h.listBatches)
		protected.GET("/batches/:id", h.getBatch)

		protected.GET("/storage/objects", h.listObjects)
	}
}

// writeError maps service and repository errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var inProgress *service.InProgressError
	switch {
	case errors.As(err, &inProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "taskId": inProgress.TaskID})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMetadataFetch):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict), errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidRegistrationPassword):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *Handler) health(c *gin.Context) {
	subscribers := 0
	if h.broker != nil {
		subscribers = h.broker.Subscribers()
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                "ok",
		"activeDownloads":   h.manager.ActiveDownloads(),
		"progressListeners": subscribers,
	})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *Handler) listObjects(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, c.Query("prefix"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}
