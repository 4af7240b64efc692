package repository

import (
	"context"
	"time"

	"tubeshelf/internal/domain"
)

// PresetRepository manages quality presets.
type PresetRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, preset *domain.QualityPreset) (int64, error)
	Get(ctx context.Context, id int64) (*domain.QualityPreset, error)
	GetDefault(ctx context.Context) (*domain.QualityPreset, error)
	List(ctx context.Context) ([]domain.QualityPreset, error)
	SetDefault(ctx context.Context, id int64) error
}

// BatchRepository manages batch downloads and their ordered items.
type BatchRepository interface {
	Init(ctx context.Context) error
	// Create inserts the batch and its items in one transaction.
	Create(ctx context.Context, batch *domain.BatchDownload) (int64, error)
	Get(ctx context.Context, id int64) (*domain.BatchDownload, error)
	List(ctx context.Context) ([]domain.BatchDownload, error)
	ListByStatuses(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.BatchDownload, error)
	UpdateItem(ctx context.Context, item *domain.BatchDownloadItem) error
	UpdateStatus(ctx context.Context, id int64, status domain.BatchStatus, completedAt *time.Time) error
}
