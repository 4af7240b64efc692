package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

const maxBatchItems = 200

// BuiltinPreset applies when neither the batch nor the library names one.
var BuiltinPreset = domain.QualityPreset{Name: "builtin", Format: "mp4", Quality: "720p"}

// BatchService manages quality presets and batch download records.
type BatchService interface {
	CreatePreset(ctx context.Context, preset *domain.QualityPreset) error
	ListPresets(ctx context.Context) ([]domain.QualityPreset, error)
	SetDefaultPreset(ctx context.Context, id int64) error
	// ResolvePreset returns the batch's preset, else the default preset,
	// else BuiltinPreset.
	ResolvePreset(ctx context.Context, presetID *int64) (domain.QualityPreset, error)

	CreateBatch(ctx context.Context, name string, presetID *int64, videoIDs []string) (*domain.BatchDownload, error)
	GetBatch(ctx context.Context, id int64) (*domain.BatchDownload, error)
	ListBatches(ctx context.Context) ([]domain.BatchDownload, error)
	ListUnfinished(ctx context.Context) ([]domain.BatchDownload, error)
	UpdateItem(ctx context.Context, item *domain.BatchDownloadItem) error
	MarkStarted(ctx context.Context, id int64) error
	// Finalize stores the status derived from items and returns it.
	Finalize(ctx context.Context, id int64, items []domain.BatchDownloadItem) (domain.BatchStatus, error)
}

type batchService struct {
	presets repository.PresetRepository
	batches repository.BatchRepository
}

func NewBatchService(presets repository.PresetRepository, batches repository.BatchRepository) BatchService {
	return &batchService{
		presets: presets,
		batches: batches,
	}
}

func (s *batchService) CreatePreset(ctx context.Context, preset *domain.QualityPreset) error {
	preset.Name = strings.TrimSpace(preset.Name)
	if preset.Name == "" {
		return invalidf("preset name is required")
	}
	preset.Format = strings.ToLower(strings.TrimSpace(preset.Format))
	preset.Quality = strings.ToLower(strings.TrimSpace(preset.Quality))
	_, err := s.presets.Create(ctx, preset)
	return err
}

func (s *batchService) ListPresets(ctx context.Context) ([]domain.QualityPreset, error) {
	return s.presets.List(ctx)
}

func (s *batchService) SetDefaultPreset(ctx context.Context, id int64) error {
	return s.presets.SetDefault(ctx, id)
}

func (s *batchService) ResolvePreset(ctx context.Context, presetID *int64) (domain.QualityPreset, error) {
	if presetID != nil {
		preset, err := s.presets.Get(ctx, *presetID)
		if err == nil {
			return *preset, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.QualityPreset{}, err
		}
	}

	preset, err := s.presets.GetDefault(ctx)
	if err == nil {
		return *preset, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.QualityPreset{}, err
	}
	return BuiltinPreset, nil
}

func (s *batchService) CreateBatch(ctx context.Context, name string, presetID *int64, videoIDs []string) (*domain.BatchDownload, error) {
	if len(videoIDs) == 0 {
		return nil, invalidf("at least one video id is required")
	}
	if len(videoIDs) > maxBatchItems {
		return nil, invalidf("a batch holds at most %d videos", maxBatchItems)
	}
	if presetID != nil {
		if _, err := s.presets.Get(ctx, *presetID); err != nil {
			return nil, err
		}
	}

	batch := &domain.BatchDownload{
		Name:     strings.TrimSpace(name),
		PresetID: presetID,
		Status:   domain.BatchStatusPending,
		Items:    make([]domain.BatchDownloadItem, 0, len(videoIDs)),
	}
	for _, id := range videoIDs {
		id = strings.TrimSpace(id)
		if !domain.ValidVideoID(id) {
			return nil, invalidf("invalid video id %q", id)
		}
		batch.Items = append(batch.Items, domain.BatchDownloadItem{VideoID: id})
	}

	if _, err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *batchService) GetBatch(ctx context.Context, id int64) (*domain.BatchDownload, error) {
	return s.batches.Get(ctx, id)
}

func (s *batchService) ListBatches(ctx context.Context) ([]domain.BatchDownload, error) {
	return s.batches.List(ctx)
}

func (s *batchService) ListUnfinished(ctx context.Context) ([]domain.BatchDownload, error) {
	return s.batches.ListByStatuses(ctx, domain.BatchStatusPending, domain.BatchStatusInProgress)
}

func (s *batchService) UpdateItem(ctx context.Context, item *domain.BatchDownloadItem) error {
	return s.batches.UpdateItem(ctx, item)
}

func (s *batchService) MarkStarted(ctx context.Context, id int64) error {
	return s.batches.UpdateStatus(ctx, id, domain.BatchStatusInProgress, nil)
}

func (s *batchService) Finalize(ctx context.Context, id int64, items []domain.BatchDownloadItem) (domain.BatchStatus, error) {
	status := domain.DeriveBatchStatus(items)
	var completedAt *time.Time
	if status != domain.BatchStatusInProgress {
		now := time.Now()
		completedAt = &now
	}
	if err := s.batches.UpdateStatus(ctx, id, status, completedAt); err != nil {
		return "", err
	}
	return status, nil
}
