package oracle

import "errors"

// Sentinel kinds for oracle adapter errors.
var (
	ErrUnauthorized = errors.New("market data request unauthorized")
	ErrRateLimited  = errors.New("market data rate limited")
	ErrUpstream     = errors.New("market data upstream error")
	ErrBadResponse  = errors.New("malformed market data response")
)
