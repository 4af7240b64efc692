package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks request validation failures.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidVideoID rejects ids that cannot name a source video.
	ErrInvalidVideoID = fmt.Errorf("%w: invalid video id", ErrInvalidArgument)
	// ErrDownloadInProgress is matched by *InProgressError.
	ErrDownloadInProgress = errors.New("download already in progress")
	// ErrMetadataFetch wraps failures of the video metadata lookup.
	ErrMetadataFetch = errors.New("metadata fetch failed")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
