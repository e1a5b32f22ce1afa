package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// NeutralTrust is the trusted score of a source with no verified observation.
const NeutralTrust = 0.5

// Scores holds a source's reputation components. The sample counters seed
// each moving average with its first value.
type Scores struct {
	Trusted            float64
	Correctness        float64
	CorrectIntensity   float64
	IncorrectIntensity float64
	Impact             float64

	Samples          int
	CorrectSamples   int
	IncorrectSamples int
}

// NeutralScores returns the prior of a brand-new source.
func NeutralScores() Scores {
	return Scores{Trusted: NeutralTrust, Correctness: NeutralTrust}
}

// Source is a signal author on one platform together with its append-only
// observation log. All mutation goes through its methods, which serialize on
// an internal lock; readers get copies.
type Source struct {
	mu sync.RWMutex

	key           string
	name          string
	identifier    string
	platform      SourceType
	observedSince time.Time

	observations []Observation
	lastVerified int
	scores       Scores
}

// SourceKey builds the registry key of a source.
func SourceKey(platform SourceType, name string) string {
	return platform.String() + ":" + name
}

// NewSource creates an empty source with the neutral prior.
func NewSource(platform SourceType, name, identifier string, now time.Time) *Source {
	if name == "" {
		name = identifier
	}
	return &Source{
		key:           SourceKey(platform, name),
		name:          name,
		identifier:    identifier,
		platform:      platform,
		observedSince: now,
		lastVerified:  -1,
		scores:        NeutralScores(),
	}
}

func (s *Source) Key() string              { return s.key }
func (s *Source) Name() string             { return s.name }
func (s *Source) Identifier() string       { return s.identifier }
func (s *Source) Platform() SourceType     { return s.platform }
func (s *Source) ObservedSince() time.Time { return s.observedSince }

// Append adds an observation at the end of the log and returns its index.
// The verification fields are reset so a new entry always starts UNCHECKED.
func (s *Source) Append(o Observation) int {
	o.Checked = Unchecked
	o.CorrectnessScore = 0
	o.Unknowable = false
	o.Retries = 0
	o.DeferredSince = time.Time{}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = append(s.observations, o)
	return len(s.observations) - 1
}

// Len returns the number of observations.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations)
}

// Observation returns a copy of the entry at idx.
func (s *Source) Observation(idx int) (Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.observations) {
		return Observation{}, false
	}
	return s.observations[idx], true
}

// Snapshot returns a copy of the whole log.
func (s *Source) Snapshot() []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// Candidates returns the indices past the watermark that are not CHECKED.
func (s *Source) Candidates() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for i := s.lastVerified + 1; i < len(s.observations); i++ {
		if s.observations[i].Checked != Checked {
			out = append(out, i)
		}
	}
	return out
}

// Recent returns copies of the observations asserted at or after since.
func (s *Source) Recent(since time.Time) []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Observation
	for i := len(s.observations) - 1; i >= 0; i-- {
		o := s.observations[i]
		if o.AssertedAt.Before(since) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Resolve writes the terminal verdict of the entry at idx and advances the
// watermark. A CHECKED entry cannot be written again.
func (s *Source) Resolve(idx int, score float64, unknowable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.observations) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, idx)
	}
	o := &s.observations[idx]
	if o.Checked == Checked {
		return fmt.Errorf("%w: %s[%d]", ErrAlreadyChecked, s.key, idx)
	}
	o.Checked = Checked
	o.CorrectnessScore = clamp01(score)
	o.Unknowable = unknowable
	s.advanceLocked()
	return nil
}

// Defer marks the entry at idx CANNOT_CHECK_YET. When countRetry is set the
// retry counter is incremented; the new count is returned.
func (s *Source) Defer(idx int, now time.Time, countRetry bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.observations) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, idx)
	}
	o := &s.observations[idx]
	if o.Checked == Checked {
		return o.Retries, fmt.Errorf("%w: %s[%d]", ErrAlreadyChecked, s.key, idx)
	}
	if o.Checked == Unchecked {
		o.DeferredSince = now
	}
	o.Checked = CannotCheckYet
	if countRetry {
		o.Retries++
	}
	return o.Retries, nil
}

// SetPriceAtObservation fills the price captured at ingestion, if still unset.
func (s *Source) SetPriceAtObservation(idx int, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.observations) || s.observations[idx].PriceAtObservation.Valid {
		return
	}
	s.observations[idx].PriceAtObservation = decimal.NewNullDecimal(price)
}

// LastVerifiedIndex is the highest index such that every entry up to it is
// CHECKED, or -1.
func (s *Source) LastVerifiedIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastVerified
}

// Scores returns the current reputation components.
func (s *Source) Scores() Scores {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores
}

// TrustedScore returns the composite trusted score.
func (s *Source) TrustedScore() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores.Trusted
}

// UpdateScores applies fn to the scores under the source lock.
func (s *Source) UpdateScores(fn func(Scores) Scores) Scores {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.scores)
	next.Trusted = clamp01(next.Trusted)
	s.scores = next
	return next
}

func (s *Source) advanceLocked() {
	for s.lastVerified+1 < len(s.observations) && s.observations[s.lastVerified+1].Checked == Checked {
		s.lastVerified++
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// VerificationJob asks a worker to verify and re-aggregate one source.
type VerificationJob struct {
	SourceKey  string
	EnqueuedAt time.Time
}
