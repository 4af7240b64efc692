package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownloadStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   DownloadStatus
		expected bool
	}{
		{DownloadStatusPending, false},
		{DownloadStatusDownloading, false},
		{DownloadStatusCompleted, true},
		{DownloadStatusFailed, true},
		{DownloadStatusCancelled, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.IsTerminal(), "status %s", tt.status)
	}
}

func TestDownloadStatus_Valid(t *testing.T) {
	assert.True(t, DownloadStatusCancelled.Valid())
	assert.False(t, DownloadStatus("paused").Valid())
}

func TestDeriveBatchStatus(t *testing.T) {
	item := func(s BatchItemStatus) BatchDownloadItem { return BatchDownloadItem{Status: s} }

	tests := []struct {
		name     string
		items    []BatchDownloadItem
		expected BatchStatus
	}{
		{"empty batch", nil, BatchStatusCompleted},
		{"one pending", []BatchDownloadItem{item(BatchItemStatusCompleted), item(BatchItemStatusPending)}, BatchStatusInProgress},
		{"one downloading after a failure", []BatchDownloadItem{item(BatchItemStatusFailed), item(BatchItemStatusDownloading)}, BatchStatusInProgress},
		{"all completed", []BatchDownloadItem{item(BatchItemStatusCompleted), item(BatchItemStatusCompleted)}, BatchStatusCompleted},
		{"any failed", []BatchDownloadItem{item(BatchItemStatusCompleted), item(BatchItemStatusFailed), item(BatchItemStatusCompleted)}, BatchStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveBatchStatus(tt.items))
		})
	}
}

func TestQualityPreset_Options(t *testing.T) {
	p := QualityPreset{Format: "mp4", Quality: "1080p", Subtitles: true}
	opts := p.Options()
	assert.Equal(t, "mp4", opts.Format)
	assert.Equal(t, "1080p", opts.Quality)
	assert.True(t, opts.Subtitles)
	assert.False(t, opts.AudioOnly)
	assert.Empty(t, opts.TranscodeArgs)
}

func TestValidVideoID(t *testing.T) {
	assert.True(t, ValidVideoID("abc123"))
	assert.True(t, ValidVideoID("dQw4w9WgXcQ"))
	assert.True(t, ValidVideoID("a_b-c"))
	assert.False(t, ValidVideoID(""))
	assert.False(t, ValidVideoID("abc 123"))
	assert.False(t, ValidVideoID("../etc/passwd"))
}
