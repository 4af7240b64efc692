package domain

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusInProgress BatchStatus = "in-progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

type BatchItemStatus string

const (
	BatchItemStatusPending     BatchItemStatus = "pending"
	BatchItemStatusDownloading BatchItemStatus = "downloading"
	BatchItemStatusCompleted   BatchItemStatus = "completed"
	BatchItemStatusFailed      BatchItemStatus = "failed"
)

func (s BatchItemStatus) IsTerminal() bool {
	return s == BatchItemStatusCompleted || s == BatchItemStatusFailed
}

// QualityPreset is a named bundle of download settings applicable to a batch.
type QualityPreset struct {
	ID        int64
	Name      string
	Format    string
	Quality   string
	AudioOnly bool
	Subtitles bool
	IsDefault bool
	CreatedAt time.Time
}

// Options converts the preset into per-download options.
func (p QualityPreset) Options() DownloadOptions {
	return DownloadOptions{
		Format:    p.Format,
		Quality:   p.Quality,
		AudioOnly: p.AudioOnly,
		Subtitles: p.Subtitles,
	}
}

// BatchDownload owns an ordered list of videos downloaded one at a time.
type BatchDownload struct {
	ID          int64
	Name        string
	PresetID    *int64
	Status      BatchStatus
	Items       []BatchDownloadItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

type BatchDownloadItem struct {
	ID           int64
	BatchID      int64
	Position     int
	VideoID      string
	Status       BatchItemStatus
	DownloadID   *int64
	ErrorMessage string
	UpdatedAt    time.Time
}

// DeriveBatchStatus computes a batch status from its items: in progress while
// any item is not terminal, failed once all are terminal and any failed.
func DeriveBatchStatus(items []BatchDownloadItem) BatchStatus {
	failed := false
	for _, item := range items {
		if !item.Status.IsTerminal() {
			return BatchStatusInProgress
		}
		if item.Status == BatchItemStatusFailed {
			failed = true
		}
	}
	if failed {
		return BatchStatusFailed
	}
	return BatchStatusCompleted
}
