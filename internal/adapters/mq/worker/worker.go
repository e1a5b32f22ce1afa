// Package worker runs verification jobs: verify a source, fold the verdicts
// into its trust scores, then publish the result to the trust board.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/trendhunter/internal/adapters/mq/queue"
	"github.com/okian/trendhunter/internal/adapters/repository"
	"github.com/okian/trendhunter/internal/domain/dedupe"
	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/internal/domain/verify"
	"github.com/okian/trendhunter/pkg/logger"
	"github.com/okian/trendhunter/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Queue defines how workers receive jobs.
type Queue interface {
	Enqueue(ctx context.Context, j queue.Job) bool
	Dequeue(ctx context.Context) <-chan queue.Job
}

// SourceLookup resolves a job's source key.
type SourceLookup interface {
	Get(key string) (*model.Source, bool)
}

// Verifier runs one verification pass over a source.
type Verifier interface {
	Verify(ctx context.Context, src *model.Source) (verify.Report, error)
}

// Aggregator folds verdicts into a source's scores.
type Aggregator interface {
	Apply(src *model.Source, verdicts []model.Verdict) model.Scores
}

// Board receives the updated ranking row of a source.
type Board interface {
	Upsert(ctx context.Context, e repository.Entry) error
}

// Processor handles one job.
type Processor interface {
	Process(ctx context.Context, j queue.Job) error
}

// VerificationProcessor runs verify, aggregate and board upsert for one
// source. Callers guarantee at most one job per source is in flight.
type VerificationProcessor struct {
	sources    SourceLookup
	verifier   Verifier
	aggregator Aggregator
	board      Board
	now        func() time.Time
}

// NewVerificationProcessor wires the verification pipeline.
func NewVerificationProcessor(sources SourceLookup, v Verifier, a Aggregator, b Board, opts ...ProcessorOption) *VerificationProcessor {
	p := &VerificationProcessor{sources: sources, verifier: v, aggregator: a, board: b, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process verifies the source named by j and republishes its trust.
func (p *VerificationProcessor) Process(ctx context.Context, j queue.Job) error {
	src, ok := p.sources.Get(j.SourceKey)
	if !ok {
		return fmt.Errorf("job %s: %w", j.SourceKey, repository.ErrNotFound)
	}

	rep, err := p.verifier.Verify(ctx, src)
	if err != nil {
		return fmt.Errorf("verify %s: %w", j.SourceKey, err)
	}

	sc := src.Scores()
	if len(rep.Verdicts) > 0 {
		sc = p.aggregator.Apply(src, rep.Verdicts)
	}
	metrics.UpdateTrustScore(src.Key(), sc.Trusted)

	e := repository.Entry{
		SourceKey:          src.Key(),
		Platform:           src.Platform().String(),
		TrustedScore:       sc.Trusted,
		Correctness:        sc.Correctness,
		CorrectIntensity:   sc.CorrectIntensity,
		IncorrectIntensity: sc.IncorrectIntensity,
		Impact:             sc.Impact,
		Verified:           sc.Samples,
		Observations:       src.Len(),
		LastVerifiedIndex:  rep.Watermark,
		UpdatedAt:          p.now(),
	}
	if err := p.board.Upsert(ctx, e); err != nil {
		return fmt.Errorf("board upsert %s: %w", j.SourceKey, err)
	}
	return nil
}

// Worker consumes jobs until its queue closes or ctx is done.
type Worker struct {
	queue     Queue
	processor Processor
	inflight  dedupe.Deduper
	name      string
	active    *atomic.Int64
	done      chan struct{}
	logger    logger.Logger
}

// NewWorker creates a worker. inflight may be nil.
func NewWorker(q Queue, p Processor, inflight dedupe.Deduper, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		processor: p,
		inflight:  inflight,
		name:      "worker",
		active:    &atomic.Int64{},
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue closes or ctx is done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if d, ok := w.queue.(interface{ Done() }); ok {
				d.Done()
			}
			w.handle(ctx, j)
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) handle(ctx context.Context, j queue.Job) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if w.inflight != nil {
			w.inflight.Unrecord(ctx, j.SourceKey)
		}
	}()

	if err := w.processor.Process(ctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process")
		w.logger.Error(ctx, "verification job failed",
			logger.String("source", j.SourceKey),
			logger.Error(err),
		)
	}
}

// Pool manages the workers sharing one queue and the in-flight set that
// keeps a source to a single job at a time.
type Pool struct {
	workers  []*Worker
	queue    Queue
	inflight dedupe.Deduper
	active   atomic.Int64
	start    sync.Once
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses
// twice the CPU count.
func NewPool(workerCount int, q Queue, p Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*Worker, workerCount),
		queue:    q,
		inflight: dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0)),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range pool.workers {
		w := NewWorker(q, p, pool.inflight, WithName("worker-"+strconv.Itoa(i)))
		w.active = &pool.active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Start launches every worker once.
func (p *Pool) Start(ctx context.Context) {
	p.start.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
	})
}

// Submit enqueues a job for key unless one is already queued or running.
// It reports whether a job was enqueued.
func (p *Pool) Submit(ctx context.Context, key string) bool {
	if p.inflight.SeenAndRecord(ctx, key) {
		return false
	}
	if !p.queue.Enqueue(ctx, queue.Job{SourceKey: key, EnqueuedAt: time.Now()}) {
		p.inflight.Unrecord(ctx, key)
		return false
	}
	return true
}

// InFlight returns the number of sources with a queued or running job.
func (p *Pool) InFlight() int64 { return p.inflight.Size() }

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", ErrStopped)
		}
	}
	return nil
}
