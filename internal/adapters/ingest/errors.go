package ingest

import "errors"

// Sentinel kinds for ingestion errors.
var (
	ErrPlatformHalted = errors.New("platform halted")
	ErrNoFeed         = errors.New("no sentiment source for platform")
)
