package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
	// ErrActiveDownload is returned when a video already has a non-terminal download.
	ErrActiveDownload = errors.New("video already has an active download")
)
