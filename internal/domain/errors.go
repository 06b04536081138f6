package domain

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCodeExists indicates the short code is already taken.
	ErrCodeExists = errors.New("short code already exists")

	// ErrUnavailable indicates the backing store cannot serve the request
	// right now, e.g. every database connection is busy.
	ErrUnavailable = errors.New("storage unavailable")
)
