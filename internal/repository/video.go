package repository

import (
	"context"

	"tubeshelf/internal/domain"
)

// VideoRepository manages library videos.
type VideoRepository interface {
	Init(ctx context.Context) error
	// Upsert creates the video or refreshes its descriptive metadata.
	Upsert(ctx context.Context, video *domain.Video) error
	Get(ctx context.Context, id int64) (*domain.Video, error)
	GetByVideoID(ctx context.Context, videoID string) (*domain.Video, error)
	List(ctx context.Context) ([]domain.Video, error)
	MarkDownloaded(ctx context.Context, videoID, filePath string, fileSize int64) error
	Delete(ctx context.Context, id int64) error
}

// CollectionRepository manages collections and their video membership.
type CollectionRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, collection *domain.Collection) (int64, error)
	Update(ctx context.Context, collection *domain.Collection) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Collection, error)
	List(ctx context.Context) ([]domain.Collection, error)
	// AddVideo links a video to a collection; an existing link is left as is.
	AddVideo(ctx context.Context, collectionID, videoID int64) error
	RemoveVideo(ctx context.Context, collectionID, videoID int64) error
	ListVideos(ctx context.Context, collectionID int64) ([]domain.Video, error)
}
