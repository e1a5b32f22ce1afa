package model

// Verdict is the outcome of verifying one observation. Intensity is
// |directional| and lives only here; it is never stored on the Observation.
type Verdict struct {
	Index      int
	Score      float64
	Intensity  float64
	Unknowable bool
}
