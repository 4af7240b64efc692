package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

// InProgressError reports the task already downloading the requested video.
type InProgressError struct {
	TaskID int64
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("download already in progress (task %d)", e.TaskID)
}

func (e *InProgressError) Is(target error) bool {
	return target == ErrDownloadInProgress
}

// DownloadService coordinates download task persistence.
type DownloadService interface {
	CreateDownload(ctx context.Context, videoID string, opts domain.DownloadOptions) (*domain.Download, error)
	GetDownload(ctx context.Context, id int64) (*domain.Download, error)
	ListDownloads(ctx context.Context) ([]domain.Download, error)
	ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error)
	MarkDownloading(ctx context.Context, id int64) (bool, error)
	UpdateProgress(ctx context.Context, id int64, progress float64, downloaded, total int64) (bool, error)
	// Complete finishes the task and records the file on its video.
	Complete(ctx context.Context, id int64, filePath string, fileSize int64) (bool, error)
	Fail(ctx context.Context, id int64, message string) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	SetArchiveLocation(ctx context.Context, id int64, location string) error
	FailInterrupted(ctx context.Context, message string) (int64, error)
	DeleteDownload(ctx context.Context, id int64) error
}

type downloadService struct {
	downloads repository.DownloadRepository
	videos    repository.VideoRepository
}

func NewDownloadService(downloads repository.DownloadRepository, videos repository.VideoRepository) DownloadService {
	return &downloadService{
		downloads: downloads,
		videos:    videos,
	}
}

func (s *downloadService) CreateDownload(ctx context.Context, videoID string, opts domain.DownloadOptions) (*domain.Download, error) {
	videoID = strings.TrimSpace(videoID)
	if !domain.ValidVideoID(videoID) {
		return nil, ErrInvalidVideoID
	}

	download := &domain.Download{
		VideoID: videoID,
		Options: opts,
		Status:  domain.DownloadStatusPending,
	}

	id, err := s.downloads.Create(ctx, download)
	if err != nil {
		if errors.Is(err, repository.ErrActiveDownload) {
			return nil, &InProgressError{TaskID: id}
		}
		return nil, err
	}
	return download, nil
}

func (s *downloadService) GetDownload(ctx context.Context, id int64) (*domain.Download, error) {
	return s.downloads.Get(ctx, id)
}

func (s *downloadService) ListDownloads(ctx context.Context) ([]domain.Download, error) {
	return s.downloads.List(ctx)
}

func (s *downloadService) ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error) {
	return s.downloads.ListByStatuses(ctx, statuses...)
}

func (s *downloadService) MarkDownloading(ctx context.Context, id int64) (bool, error) {
	return s.downloads.MarkDownloading(ctx, id)
}

func (s *downloadService) UpdateProgress(ctx context.Context, id int64, progress float64, downloaded, total int64) (bool, error) {
	return s.downloads.UpdateProgress(ctx, id, progress, downloaded, total)
}

func (s *downloadService) Complete(ctx context.Context, id int64, filePath string, fileSize int64) (bool, error) {
	download, err := s.downloads.Get(ctx, id)
	if err != nil {
		return false, err
	}
	ok, err := s.downloads.Finish(ctx, id, repository.FinishParams{
		Status:   domain.DownloadStatusCompleted,
		FilePath: filePath,
		FileSize: fileSize,
	})
	if err != nil || !ok {
		return ok, err
	}
	if err := s.videos.MarkDownloaded(ctx, download.VideoID, filePath, fileSize); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return true, fmt.Errorf("mark video downloaded: %w", err)
	}
	return true, nil
}

func (s *downloadService) Fail(ctx context.Context, id int64, message string) (bool, error) {
	return s.downloads.Finish(ctx, id, repository.FinishParams{
		Status:       domain.DownloadStatusFailed,
		ErrorMessage: message,
	})
}

func (s *downloadService) Cancel(ctx context.Context, id int64) (bool, error) {
	return s.downloads.Finish(ctx, id, repository.FinishParams{Status: domain.DownloadStatusCancelled})
}

func (s *downloadService) SetArchiveLocation(ctx context.Context, id int64, location string) error {
	return s.downloads.SetArchiveLocation(ctx, id, location)
}

// FailInterrupted fails tasks left downloading by a previous process.
func (s *downloadService) FailInterrupted(ctx context.Context, message string) (int64, error) {
	return s.downloads.FailByStatus(ctx, domain.DownloadStatusDownloading, message)
}

func (s *downloadService) DeleteDownload(ctx context.Context, id int64) error {
	return s.downloads.Delete(ctx, id)
}
