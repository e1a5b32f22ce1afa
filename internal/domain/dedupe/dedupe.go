// Package dedupe tracks recently seen keys: sentiment fingerprints during
// ingestion and source keys with a verification job in flight.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it
	// if not. The check and the record are one atomic step.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so it can be recorded again.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// entry is a node of the insertion-ordered list.
type entry struct {
	key        string
	prev, next *entry
}

// inMemoryDeduper keeps keys in a map plus a doubly linked list ordered by
// insertion. In bounded mode the oldest key is evicted when full.
type inMemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]*entry
	newest  *entry
	oldest  *entry
	maxSize int // <= 0 means unbounded
	size    atomic.Int64
	pool    sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.entries = make(map[string]*entry)
	d.pool.New = func() any { return &entry{} }
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.entries) >= d.maxSize {
		d.removeLocked(d.oldest)
	}

	e, _ := d.pool.Get().(*entry)
	e.key = key
	e.next = d.newest
	if d.newest != nil {
		d.newest.prev = e
	}
	d.newest = e
	if d.oldest == nil {
		d.oldest = e
	}
	d.entries[key] = e
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok {
		d.removeLocked(e)
	}
}

// removeLocked unlinks e. d.mu must be held.
func (d *inMemoryDeduper) removeLocked(e *entry) {
	if e == nil {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		d.newest = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		d.oldest = e.prev
	}
	delete(d.entries, e.key)
	*e = entry{}
	d.pool.Put(e)
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
