package clipboard

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrTooLarge       = errors.New("payload too large")
	// ErrUploadFailed means the blob store reported a terminal failure.
	ErrUploadFailed = errors.New("upload failed")
	ErrNotFound     = errors.New("clipboard item not found")
	ErrExpired      = errors.New("clipboard item expired")
)
