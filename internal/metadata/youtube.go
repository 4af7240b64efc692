// Package metadata looks up descriptive video details from YouTube.
package metadata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/sirupsen/logrus"

	"tubeshelf/internal/domain"
)

// Fetcher returns descriptive metadata for a video id.
type Fetcher interface {
	FetchVideoDetails(ctx context.Context, videoID string) (*domain.VideoDetails, error)
}

// YouTubeFetcher reads video details through the YouTube player API.
type YouTubeFetcher struct {
	client *youtube.Client
	logger *logrus.Logger
}

func NewYouTubeFetcher(httpClient *http.Client, logger *logrus.Logger) *YouTubeFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &YouTubeFetcher{
		client: &youtube.Client{HTTPClient: httpClient},
		logger: logger,
	}
}

func (f *YouTubeFetcher) FetchVideoDetails(ctx context.Context, videoID string) (*domain.VideoDetails, error) {
	logger := f.logger.WithField("video_id", videoID)
	logger.Debug("fetching video details")

	video, err := f.client.GetVideoContext(ctx, videoID)
	if err != nil {
		logger.Warnf("fetch video details: %v", err)
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}
	return detailsFromVideo(video), nil
}

func detailsFromVideo(video *youtube.Video) *domain.VideoDetails {
	details := &domain.VideoDetails{
		Title:           video.Title,
		ChannelTitle:    video.Author,
		Description:     video.Description,
		Thumbnail:       largestThumbnail(video.Thumbnails),
		DurationSeconds: int64(video.Duration.Seconds()),
		ViewCount:       int64(video.Views),
	}
	if !video.PublishDate.IsZero() {
		published := video.PublishDate
		details.PublishedAt = &published
	}
	return details
}

func largestThumbnail(thumbs youtube.Thumbnails) string {
	if len(thumbs) == 0 {
		return ""
	}
	best := thumbs[0]
	for _, t := range thumbs[1:] {
		if t.Width*t.Height > best.Width*best.Height {
			best = t
		}
	}
	return best.URL
}

var _ Fetcher = (*YouTubeFetcher)(nil)
