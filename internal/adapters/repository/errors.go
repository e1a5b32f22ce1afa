package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("source not found")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrEmptyKey     = errors.New("empty source key")
)
