package downloader

import (
	"errors"
	"fmt"
	"strings"

	"tubeshelf/internal/process"
)

var (
	// ErrToolFailure is a non-zero exit of the download tool.
	ErrToolFailure = errors.New("download tool failed")
	// ErrOutputMissing means the tool exited cleanly without a usable file.
	ErrOutputMissing = errors.New("output file missing or empty")
	// ErrPostProcessing is a failed transcode. It never fails the download.
	ErrPostProcessing = errors.New("post-processing failed")
)

const (
	msgForbidden   = "Access forbidden: the video host refused the request (HTTP 403)."
	msgUnavailable = "Video unavailable: it may be private, removed, or region locked."
	msgToolMissing = "Download tool not found: check download.toolpath."
	msgOutput      = "Download finished but produced no output file."
	msgInterrupted = "Download interrupted by server restart."
)

// toolError carries the tool's exit code and the tail of its stderr.
type toolError struct {
	exitCode int
	stderr   string
}

func (e *toolError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("exit status %d", e.exitCode)
	}
	return fmt.Sprintf("exit status %d: %s", e.exitCode, e.stderr)
}

func (e *toolError) Unwrap() error { return ErrToolFailure }

// userMessage turns a failure into the short text stored on the task.
func userMessage(err error, maxLen int) string {
	switch {
	case errors.Is(err, process.ErrExecutableNotFound):
		return msgToolMissing
	case errors.Is(err, ErrOutputMissing):
		return msgOutput
	}

	raw := err.Error()
	var te *toolError
	if errors.As(err, &te) && te.stderr != "" {
		raw = te.stderr
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "http error 403"), strings.Contains(lower, "forbidden"):
		return msgForbidden
	case strings.Contains(lower, "video unavailable"), strings.Contains(lower, "private video"), strings.Contains(lower, "this video is unavailable"):
		return msgUnavailable
	}
	return truncate(strings.TrimSpace(raw), maxLen)
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// tailBuffer keeps the last lines written to it, bounded by count.
type tailBuffer struct {
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) add(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

// errorText prefers lines the tool marked as errors.
func (b *tailBuffer) errorText() string {
	var errs []string
	for _, l := range b.lines {
		if strings.HasPrefix(l, "ERROR:") {
			errs = append(errs, strings.TrimSpace(strings.TrimPrefix(l, "ERROR:")))
		}
	}
	if len(errs) > 0 {
		return strings.Join(errs, "; ")
	}
	return strings.Join(b.lines, "\n")
}
