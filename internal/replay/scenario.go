// Package replay runs a scripted market through ingestion, verification and
// decision on a simulated clock.
package replay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/trendhunter/internal/config"
	"github.com/okian/trendhunter/internal/domain/model"
)

// Scenario is a replayable market script. Offsets are relative to Start.
type Scenario struct {
	Name    string                  `koanf:"name"`
	Start   time.Time               `koanf:"start"`
	Step    time.Duration           `koanf:"step"`
	Steps   int                     `koanf:"steps"`
	Balance float64                 `koanf:"balance"`
	Sources []SourceScript          `koanf:"sources"`
	Prices  map[string][]PricePoint `koanf:"prices"`
	// Withdraw fully exits a token at the given offsets.
	Withdraw []WithdrawAt `koanf:"withdraw"`
}

// SourceScript lists what one identifier asserts.
type SourceScript struct {
	Platform   string            `koanf:"platform"`
	Identifier string            `koanf:"identifier"`
	Sentiments []SentimentScript `koanf:"sentiments"`
}

// SentimentScript is one asserted opinion.
type SentimentScript struct {
	Token   string        `koanf:"token"`
	Address string        `koanf:"address"`
	Action  string        `koanf:"action"`
	At      time.Duration `koanf:"at"`
}

// PricePoint sets a token's price from At until the next point.
type PricePoint struct {
	At    time.Duration `koanf:"at"`
	Price float64       `koanf:"price"`
}

// WithdrawAt is an operator withdrawal.
type WithdrawAt struct {
	Token string        `koanf:"token"`
	At    time.Duration `koanf:"at"`
}

// Load reads a scenario file. Keys under "config" override the service
// defaults.
func Load(path string) (*Scenario, *config.Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrLoadScenario, path, err)
	}
	return parse(k)
}

func parse(k *koanf.Koanf) (*Scenario, *config.Config, error) {
	uc := koanf.UnmarshalConf{Tag: "koanf"}

	sc := &Scenario{}
	if err := k.UnmarshalWithConf("", sc, uc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLoadScenario, err)
	}
	cfg := config.New()
	if k.Exists("config") {
		if err := k.UnmarshalWithConf("config", cfg, uc); err != nil {
			return nil, nil, fmt.Errorf("%w: config: %w", ErrLoadScenario, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, nil, err
	}
	return sc, cfg, nil
}

// Validate checks the scenario and normalizes token symbols.
func (s *Scenario) Validate() error {
	switch {
	case s.Start.IsZero():
		return fmt.Errorf("%w: start is required", ErrInvalidScenario)
	case s.Step <= 0:
		return fmt.Errorf("%w: step must be positive", ErrInvalidScenario)
	case s.Steps <= 0:
		return fmt.Errorf("%w: steps must be positive", ErrInvalidScenario)
	case len(s.Sources) == 0:
		return fmt.Errorf("%w: no sources", ErrInvalidScenario)
	}
	s.Start = s.Start.UTC()

	for i, src := range s.Sources {
		if _, err := model.ParseSourceType(src.Platform); err != nil {
			return fmt.Errorf("%w: sources[%d]: %w", ErrInvalidScenario, i, err)
		}
		if strings.TrimSpace(src.Identifier) == "" {
			return fmt.Errorf("%w: sources[%d]: identifier is required", ErrInvalidScenario, i)
		}
		for j, st := range src.Sentiments {
			if _, err := model.ParseAction(st.Action); err != nil {
				return fmt.Errorf("%w: sources[%d].sentiments[%d]: %w", ErrInvalidScenario, i, j, err)
			}
		}
	}

	prices := make(map[string][]PricePoint, len(s.Prices))
	for token, path := range s.Prices {
		pts := append([]PricePoint(nil), path...)
		sort.Slice(pts, func(i, j int) bool { return pts[i].At < pts[j].At })
		for _, p := range pts {
			if p.Price <= 0 {
				return fmt.Errorf("%w: prices.%s: price must be positive", ErrInvalidScenario, token)
			}
		}
		prices[model.NormalizeToken(token)] = pts
	}
	s.Prices = prices
	return nil
}

// End is the last simulated instant.
func (s *Scenario) End() time.Time {
	return s.Start.Add(time.Duration(s.Steps) * s.Step)
}

// priceAt returns the scripted price of token at offset, if any point is at
// or before it.
func (s *Scenario) priceAt(token string, offset time.Duration) (float64, bool) {
	path := s.Prices[token]
	idx := sort.Search(len(path), func(i int) bool { return path[i].At > offset })
	if idx == 0 {
		return 0, false
	}
	return path[idx-1].Price, true
}
