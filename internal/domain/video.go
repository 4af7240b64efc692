package domain

import (
	"regexp"
	"time"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidVideoID reports whether id can be used as a source video id.
func ValidVideoID(id string) bool {
	return videoIDRe.MatchString(id)
}

// VideoDetails is the descriptive metadata returned by a metadata lookup.
type VideoDetails struct {
	Title           string
	ChannelTitle    string
	Description     string
	Thumbnail       string
	DurationSeconds int64
	PublishedAt     *time.Time
	ViewCount       int64
	LikeCount       int64
}

// Video is a library entry for a source video, downloaded or not.
type Video struct {
	ID         int64
	VideoID    string
	Details    VideoDetails
	Downloaded bool
	FilePath   string
	FileSize   int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
