package replay

import "errors"

// Sentinel kinds for replay errors.
var (
	ErrLoadScenario    = errors.New("load scenario")
	ErrInvalidScenario = errors.New("invalid scenario")
)
