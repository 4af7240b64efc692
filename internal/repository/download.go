package repository

import (
	"context"

	"tubeshelf/internal/domain"
)

// FinishParams describes a terminal transition of a download.
type FinishParams struct {
	Status       domain.DownloadStatus
	ErrorMessage string
	FilePath     string
	FileSize     int64
}

// DownloadRepository exposes persistence operations for Download records.
// Transition methods report false when the record was not in a state that
// allows the transition.
type DownloadRepository interface {
	Init(ctx context.Context) error
	// Create inserts a pending download. When the video already has an active
	// download it returns that download's id together with ErrActiveDownload.
	Create(ctx context.Context, download *domain.Download) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Download, error)
	List(ctx context.Context) ([]domain.Download, error)
	ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error)
	MarkDownloading(ctx context.Context, id int64) (bool, error)
	UpdateProgress(ctx context.Context, id int64, progress float64, downloaded, total int64) (bool, error)
	Finish(ctx context.Context, id int64, params FinishParams) (bool, error)
	SetArchiveLocation(ctx context.Context, id int64, location string) error
	FailByStatus(ctx context.Context, status domain.DownloadStatus, message string) (int64, error)
	Delete(ctx context.Context, id int64) error
}
