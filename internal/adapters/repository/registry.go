package repository

import (
	"sync"
	"time"

	"github.com/okian/trendhunter/internal/domain/model"
	"github.com/okian/trendhunter/pkg/metrics"
)

// Registry owns every tracked source, keyed by platform:name.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*model.Source
	order []*model.Source
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*model.Source)}
}

// GetOrCreate returns the source for (platform, name), creating it with
// observedSince = now when absent. The second result reports creation.
func (r *Registry) GetOrCreate(platform model.SourceType, name, identifier string, now time.Time) (*model.Source, bool) {
	if name == "" {
		name = identifier
	}
	key := model.SourceKey(platform, name)

	r.mu.RLock()
	src, ok := r.byKey[key]
	r.mu.RUnlock()
	if ok {
		return src, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.byKey[key]; ok {
		return src, false
	}
	src = model.NewSource(platform, name, identifier, now)
	r.byKey[key] = src
	r.order = append(r.order, src)
	metrics.UpdateSourcesTotal(len(r.order))
	return src, true
}

// Get returns the source stored under key.
func (r *Registry) Get(key string) (*model.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byKey[key]
	return src, ok
}

// All returns every source in registration order.
func (r *Registry) All() []*model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Source, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
