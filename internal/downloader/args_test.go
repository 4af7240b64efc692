package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tubeshelf/internal/domain"
)

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		name string
		opts domain.DownloadOptions
		want string
	}{
		{"audio only wins", domain.DownloadOptions{AudioOnly: true, Format: "mp4", Quality: "1080p"}, "bestaudio[ext=m4a]/bestaudio"},
		{"capped 1080p", domain.DownloadOptions{Format: "mp4", Quality: "1080p"}, "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080]/best"},
		{"capped 480p", domain.DownloadOptions{Format: "MP4", Quality: "480P"}, "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/best[height<=480]/best"},
		{"unknown quality", domain.DownloadOptions{Format: "mp4", Quality: "4k"}, "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"},
		{"other format", domain.DownloadOptions{Format: "webm", Quality: "720p"}, "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"},
		{"empty", domain.DownloadOptions{}, "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSelector(tt.opts))
		})
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/data/abc123-7.mp4", OutputPath("/data", "abc123", 7, domain.DownloadOptions{}))
	assert.Equal(t, "/data/abc123-7.m4a", OutputPath("/data", "abc123", 7, domain.DownloadOptions{AudioOnly: true}))
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs("abc123", "/data/abc123-1.mp4", domain.DownloadOptions{Format: "mp4", Quality: "720p"})

	assert.Equal(t, []string{"-o", "/data/abc123-1.mp4", "-f"}, args[:3])
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", args[len(args)-1])
	assert.Contains(t, args, "--newline")
	assert.Contains(t, args, "--merge-output-format")
	assert.NotContains(t, args, "--write-subs")
	assert.NotContains(t, args, "--embed-metadata")
}

func TestBuildArgs_Options(t *testing.T) {
	args := BuildArgs("abc123", "/data/abc123-1.m4a", domain.DownloadOptions{AudioOnly: true, Subtitles: true, SaveMetadata: true})

	assert.Contains(t, args, "-x")
	assert.Contains(t, args, "--write-subs")
	assert.Contains(t, args, "--embed-metadata")
	assert.NotContains(t, args, "--merge-output-format")
}

func TestTranscodeArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-i", "in.mp4", "-y", "-c:v", "libx264", "out.mp4"},
		TranscodeArgs("in.mp4", "out.mp4", []string{"-c:v", "libx264"}))
	assert.Equal(t, []string{"-i", "in.mp4", "-y", "out.mp4"}, TranscodeArgs("in.mp4", "out.mp4", nil))
}
