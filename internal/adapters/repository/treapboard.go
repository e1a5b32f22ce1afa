package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/trendhunter/pkg/metrics"
)

// Default board configuration constants.
const (
	defaultSnapshotInterval = time.Second
	defaultTopCacheSize     = 100
	scoreScale              = 1e12
)

// Treap ordering: score DESC, then key ASC. In-order traversal yields the
// board from best to worst.

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	return scoreFP(math.Round(math.Max(-1, math.Min(2, x)) * scoreScale))
}

type node struct {
	key   string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore scoreFP, aKey string, bScore scoreFP, bKey string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aKey < bKey
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, key string, score scoreFP) *node {
	if n == nil {
		return &node{key: key, score: score, prio: rand.Uint64(), size: 1} //nolint:gosec // treap balance only
	}
	if less(score, key, n.score, n.key) {
		n.left = insert(n.left, key, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, key string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && key == n.key:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, key, score)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, key, score)
		}
	case less(score, key, n.score, n.key):
		n.left = remove(n.left, key, score)
	default:
		n.right = remove(n.right, key, score)
	}
	fix(n)
	return n
}

// walk visits nodes in rank order until fn returns false.
func walk(n *node, fn func(*node) bool) bool {
	if n == nil {
		return true
	}
	return walk(n.left, fn) && fn(n) && walk(n.right, fn)
}

// Snapshot is an immutable view of the board published periodically.
type Snapshot struct {
	Version   uint64
	RankByKey map[string]int
	TopCache  []Entry
	BuiltAt   time.Time
}

// TreapBoard implements Board with a treap keyed by (score, key).
type TreapBoard struct {
	mu      sync.RWMutex
	root    *node
	rows    map[string]Entry
	scores  map[string]scoreFP
	version atomic.Uint64

	snapshotInterval time.Duration
	topCacheSize     int
	snapshot         atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// NewTreapBoard constructs a board and starts its snapshot publisher, which
// runs until ctx is done or Close is called.
func NewTreapBoard(ctx context.Context, opts ...Option) *TreapBoard {
	b := &TreapBoard{
		rows:             make(map[string]Entry),
		scores:           make(map[string]scoreFP),
		snapshotInterval: defaultSnapshotInterval,
		topCacheSize:     defaultTopCacheSize,
		stop:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.publishSnapshot()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case <-ticker.C:
				if s := b.snapshot.Load(); s == nil || s.Version != b.version.Load() {
					b.publishSnapshot()
				}
			}
		}
	}()
	return b
}

// Close stops the snapshot publisher.
func (b *TreapBoard) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
	return nil
}

// Upsert replaces the row of e.SourceKey in O(log n) expected time.
func (b *TreapBoard) Upsert(_ context.Context, e Entry) error {
	if e.SourceKey == "" {
		return ErrEmptyKey
	}
	start := time.Now()
	defer func() { metrics.RecordBoardUpdateLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	ns := toFixedPoint(e.TrustedScore)
	e.Rank = 0

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.scores[e.SourceKey]; ok {
		b.root = remove(b.root, e.SourceKey, old)
	}
	b.root = insert(b.root, e.SourceKey, ns)
	b.scores[e.SourceKey] = ns
	b.rows[e.SourceKey] = e
	b.version.Add(1)
	return nil
}

// Rank returns the row of key with its dense rank. A current snapshot
// answers directly; otherwise the treap is walked.
func (b *TreapBoard) Rank(_ context.Context, key string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordBoardQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	b.mu.RLock()
	defer b.mu.RUnlock()

	row, ok := b.rows[key]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	if s := b.snapshot.Load(); s != nil && s.Version == b.version.Load() {
		if r, ok := s.RankByKey[key]; ok {
			row.Rank = r
			return row, nil
		}
	}

	target := b.scores[key]
	rank, last, first := 0, scoreFP(0), true
	walk(b.root, func(n *node) bool {
		if first || n.score != last {
			rank++
			last, first = n.score, false
		}
		return n.score != target
	})
	row.Rank = rank
	return row, nil
}

// TopN returns the best n rows in rank order.
func (b *TreapBoard) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordBoardQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	if s := b.snapshot.Load(); s != nil && s.Version == b.version.Load() && n <= len(s.TopCache) {
		out := make([]Entry, n)
		copy(out, s.TopCache[:n])
		return out, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collectLocked(n), nil
}

// Count returns the number of ranked sources.
func (b *TreapBoard) Count(_ context.Context) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

// Snapshot returns the last published snapshot.
func (b *TreapBoard) Snapshot() *Snapshot {
	return b.snapshot.Load()
}

// collectLocked returns up to limit rows with dense ranks. b.mu must be held.
func (b *TreapBoard) collectLocked(limit int) []Entry {
	out := make([]Entry, 0, min(limit, len(b.rows)))
	rank, last := 0, scoreFP(0)
	walk(b.root, func(n *node) bool {
		if len(out) == 0 || n.score != last {
			rank++
			last = n.score
		}
		row := b.rows[n.key]
		row.Rank = rank
		out = append(out, row)
		return len(out) < limit
	})
	return out
}

func (b *TreapBoard) publishSnapshot() {
	start := time.Now()

	b.mu.RLock()
	version := b.version.Load()
	all := b.collectLocked(len(b.rows) + 1)
	b.mu.RUnlock()

	ranks := make(map[string]int, len(all))
	for _, e := range all {
		ranks[e.SourceKey] = e.Rank
	}
	top := all
	if len(top) > b.topCacheSize {
		top = top[:b.topCacheSize]
	}
	b.snapshot.Store(&Snapshot{Version: version, RankByKey: ranks, TopCache: top, BuiltAt: start})

	metrics.RecordBoardSnapshot(float64(time.Since(start).Microseconds())/1000, start.Unix())
}
