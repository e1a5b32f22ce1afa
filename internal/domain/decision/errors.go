package decision

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNoPosition = errors.New("no open position")
	ErrClosing    = errors.New("decision engine is shutting down")
)
