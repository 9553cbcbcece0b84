package app

import "errors"

var (
	// ErrCoversNotConfigured is returned when cover endpoints are used
	// without object storage configured.
	ErrCoversNotConfigured = errors.New("cover storage not configured")

	// ErrNoCover is returned when a book has no uploaded cover image.
	ErrNoCover = errors.New("book has no cover image")
)
