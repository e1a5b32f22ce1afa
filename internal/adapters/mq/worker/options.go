package worker

import (
	"time"

	"github.com/okian/trendhunter/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// ProcessorOption configures a VerificationProcessor.
type ProcessorOption func(*VerificationProcessor)

// WithProcessorClock sets the time stamped on board rows.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *VerificationProcessor) {
		if now != nil {
			p.now = now
		}
	}
}
