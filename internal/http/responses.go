package http

import (
	"time"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/storage"
)

type DownloadResponse struct {
	ID              int64                 `json:"id"`
	VideoID         string                `json:"videoId"`
	Format          string                `json:"format"`
	Quality         string                `json:"quality"`
	AudioOnly       bool                  `json:"audioOnly"`
	Subtitles       bool                  `json:"subtitles"`
	SaveMetadata    bool                  `json:"saveMetadata"`
	Status          domain.DownloadStatus `json:"status"`
	Progress        float64               `json:"progress"`
	TotalBytes      *int64                `json:"totalBytes"`
	DownloadedBytes *int64                `json:"downloadedBytes"`
	FilePath        string                `json:"filePath"`
	ArchiveLocation string                `json:"archiveLocation,omitempty"`
	Error           string                `json:"error"`
	CreatedAt       string                `json:"createdAt"`
	UpdatedAt       string                `json:"updatedAt"`
	CompletedAt     *string               `json:"completedAt,omitempty"`
}

func downloadToResponse(d domain.Download) DownloadResponse {
	return DownloadResponse{
		ID:              d.ID,
		VideoID:         d.VideoID,
		Format:          d.Options.Format,
		Quality:         d.Options.Quality,
		AudioOnly:       d.Options.AudioOnly,
		Subtitles:       d.Options.Subtitles,
		SaveMetadata:    d.Options.SaveMetadata,
		Status:          d.Status,
		Progress:        d.Progress,
		TotalBytes:      d.TotalBytes,
		DownloadedBytes: d.DownloadedBytes,
		FilePath:        d.FilePath,
		ArchiveLocation: d.ArchiveLocation,
		Error:           d.ErrorMessage,
		CreatedAt:       formatTime(d.CreatedAt),
		UpdatedAt:       formatTime(d.UpdatedAt),
		CompletedAt:     formatTimePtr(d.CompletedAt),
	}
}

type VideoResponse struct {
	ID              int64   `json:"id"`
	VideoID         string  `json:"videoId"`
	Title           string  `json:"title"`
	ChannelTitle    string  `json:"channelTitle"`
	Description     string  `json:"description"`
	Thumbnail       string  `json:"thumbnail"`
	DurationSeconds int64   `json:"durationSeconds"`
	PublishedAt     *string `json:"publishedAt,omitempty"`
	ViewCount       int64   `json:"viewCount"`
	LikeCount       int64   `json:"likeCount"`
	Downloaded      bool    `json:"downloaded"`
	FilePath        string  `json:"filePath"`
	FileSize        int64   `json:"fileSize"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

func videoToResponse(v domain.Video) VideoResponse {
	return VideoResponse{
		ID:              v.ID,
		VideoID:         v.VideoID,
		Title:           v.Details.Title,
		ChannelTitle:    v.Details.ChannelTitle,
		Description:     v.Details.Description,
		Thumbnail:       v.Details.Thumbnail,
		DurationSeconds: v.Details.DurationSeconds,
		PublishedAt:     formatTimePtr(v.Details.PublishedAt),
		ViewCount:       v.Details.ViewCount,
		LikeCount:       v.Details.LikeCount,
		Downloaded:      v.Downloaded,
		FilePath:        v.FilePath,
		FileSize:        v.FileSize,
		CreatedAt:       formatTime(v.CreatedAt),
		UpdatedAt:       formatTime(v.UpdatedAt),
	}
}

func videosToResponse(videos []domain.Video) []VideoResponse {
	resp := make([]VideoResponse, len(videos))
	for i := range videos {
		resp[i] = videoToResponse(videos[i])
	}
	return resp
}

type CollectionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Position    int    `json:"position"`
	VideoCount  int    `json:"videoCount"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func collectionToResponse(c domain.Collection) CollectionResponse {
	return CollectionResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Position:    c.Position,
		VideoCount:  c.VideoCount,
		CreatedAt:   formatTime(c.CreatedAt),
		UpdatedAt:   formatTime(c.UpdatedAt),
	}
}

type PresetResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Format    string `json:"format"`
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audioOnly"`
	Subtitles bool   `json:"subtitles"`
	IsDefault bool   `json:"isDefault"`
	CreatedAt string `json:"createdAt"`
}

func presetToResponse(p domain.QualityPreset) PresetResponse {
	return PresetResponse{
		ID:        p.ID,
		Name:      p.Name,
		Format:    p.Format,
		Quality:   p.Quality,
		AudioOnly: p.AudioOnly,
		Subtitles: p.Subtitles,
		IsDefault: p.IsDefault,
		CreatedAt: formatTime(p.CreatedAt),
	}
}

type BatchItemResponse struct {
	ID         int64                  `json:"id"`
	Position   int                    `json:"position"`
	VideoID    string                 `json:"videoId"`
	Status     domain.BatchItemStatus `json:"status"`
	DownloadID *int64                 `json:"downloadId"`
	Error      string                 `json:"error"`
}

type BatchResponse struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	PresetID    *int64              `json:"presetId"`
	Status      domain.BatchStatus  `json:"status"`
	Items       []BatchItemResponse `json:"items"`
	CreatedAt   string              `json:"createdAt"`
	UpdatedAt   string              `json:"updatedAt"`
	CompletedAt *string             `json:"completedAt,omitempty"`
}

func batchToResponse(b domain.BatchDownload) BatchResponse {
	resp := BatchResponse{
		ID:          b.ID,
		Name:        b.Name,
		PresetID:    b.PresetID,
		Status:      b.Status,
		Items:       make([]BatchItemResponse, len(b.Items)),
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
		CompletedAt: formatTimePtr(b.CompletedAt),
	}
	for i, item := range b.Items {
		resp.Items[i] = BatchItemResponse{
			ID:         item.ID,
			Position:   item.Position,
			VideoID:    item.VideoID,
			Status:     item.Status,
			DownloadID: item.DownloadID,
			Error:      item.ErrorMessage,
		}
	}
	return resp
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"lastModified,omitempty"`
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}
