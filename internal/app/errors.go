package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrMissingOracle   = errors.New("no price oracle configured")
	ErrMissingVenue    = errors.New("no execution venue configured")
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrNotHalted       = errors.New("platform not halted")
	ErrSourceNotFound  = errors.New("source not found")
)
