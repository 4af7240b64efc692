package domain

import "time"

type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
	DownloadStatusCancelled   DownloadStatus = "cancelled"
)

// ActiveDownloadStatuses lists the statuses a download can still leave.
var ActiveDownloadStatuses = []DownloadStatus{
	DownloadStatusPending,
	DownloadStatusDownloading,
}

// IsTerminal reports whether no further transition may leave the status.
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case DownloadStatusCompleted, DownloadStatusFailed, DownloadStatusCancelled:
		return true
	}
	return false
}

func (s DownloadStatus) Valid() bool {
	switch s {
	case DownloadStatusPending, DownloadStatusDownloading, DownloadStatusCompleted, DownloadStatusFailed, DownloadStatusCancelled:
		return true
	}
	return false
}

// DownloadOptions describes what the download tool should fetch and how the
// result is post-processed.
type DownloadOptions struct {
	Format       string
	Quality      string
	AudioOnly    bool
	Subtitles    bool
	SaveMetadata bool
	// TranscodeArgs are passed to the post-processing tool between the
	// overwrite flag and the output path. Empty disables post-processing.
	TranscodeArgs []string
}

// Download represents one request to fetch a video through the download tool.
type Download struct {
	ID              int64
	VideoID         string
	Options         DownloadOptions
	Status          DownloadStatus
	Progress        float64
	TotalBytes      *int64
	DownloadedBytes *int64
	FilePath        string
	ArchiveLocation string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}
