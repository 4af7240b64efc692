package downloader

import (
	"fmt"
	"path/filepath"
	"strings"

	"tubeshelf/internal/domain"
)

const watchURL = "https://www.youtube.com/watch?v="

var cappedHeights = map[string]int{
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
}

// FormatSelector maps the requested options to the download tool's format
// selector. Every combination yields a selector.
func FormatSelector(opts domain.DownloadOptions) string {
	if opts.AudioOnly {
		return "bestaudio[ext=m4a]/bestaudio"
	}
	if strings.EqualFold(opts.Format, "mp4") {
		if h, ok := cappedHeights[strings.ToLower(opts.Quality)]; ok {
			return fmt.Sprintf("bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d]/best", h, h)
		}
	}
	return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
}

// OutputPath returns where the tool writes the finished file for a task.
func OutputPath(dataDir, videoID string, taskID int64, opts domain.DownloadOptions) string {
	ext := "mp4"
	if opts.AudioOnly {
		ext = "m4a"
	}
	return filepath.Join(dataDir, fmt.Sprintf("%s-%d.%s", videoID, taskID, ext))
}

// SourceURL builds the watch URL handed to the tool.
func SourceURL(videoID string) string {
	return watchURL + videoID
}

// BuildArgs returns the download tool's argument list.
func BuildArgs(videoID, outputPath string, opts domain.DownloadOptions) []string {
	args := []string{
		"-o", outputPath,
		"-f", FormatSelector(opts),
		"--no-playlist",
		"--progress",
		"--newline",
	}
	if opts.AudioOnly {
		args = append(args, "-x", "--audio-format", "m4a")
	} else {
		args = append(args, "--merge-output-format", "mp4")
	}
	if opts.Subtitles {
		args = append(args, "--write-subs", "--write-auto-subs", "--sub-langs", "en.*", "--embed-subs")
	}
	if opts.SaveMetadata {
		args = append(args, "--embed-metadata", "--write-info-json")
	}
	return append(args, SourceURL(videoID))
}

// TranscodeArgs returns the post-processing tool's argument list.
func TranscodeArgs(input, output string, codecArgs []string) []string {
	args := make([]string, 0, len(codecArgs)+4)
	args = append(args, "-i", input, "-y")
	args = append(args, codecArgs...)
	return append(args, output)
}
