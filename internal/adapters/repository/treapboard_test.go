package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func entry(key string, score float64) Entry {
	return Entry{SourceKey: key, Platform: "twitter", TrustedScore: score}
}

func TestTreapBoard_BasicOperations(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	if count := board.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if err := board.Upsert(ctx, entry("twitter:alice", 0.7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := board.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	e, err := board.Rank(ctx, "twitter:alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Rank != 1 || e.TrustedScore != 0.7 {
		t.Errorf("unexpected entry %+v", e)
	}

	top, err := board.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 1 || top[0].SourceKey != "twitter:alice" {
		t.Errorf("unexpected top %+v", top)
	}
}

func TestTreapBoard_UpsertReplacesScore(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	_ = board.Upsert(ctx, entry("a", 0.9))
	_ = board.Upsert(ctx, entry("b", 0.6))
	_ = board.Upsert(ctx, entry("a", 0.3))

	if count := board.Count(ctx); count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	top, _ := board.TopN(ctx, 2)
	if top[0].SourceKey != "b" || top[1].SourceKey != "a" {
		t.Errorf("expected b before a after downgrade, got %+v", top)
	}
	e, _ := board.Rank(ctx, "a")
	if e.Rank != 2 || e.TrustedScore != 0.3 {
		t.Errorf("unexpected entry for a: %+v", e)
	}
}

func TestTreapBoard_DenseRanksWithTies(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	_ = board.Upsert(ctx, entry("c", 0.8))
	_ = board.Upsert(ctx, entry("a", 0.8))
	_ = board.Upsert(ctx, entry("b", 0.5))
	_ = board.Upsert(ctx, entry("d", 0.4))

	top, _ := board.TopN(ctx, 4)
	wantKeys := []string{"a", "c", "b", "d"}
	wantRanks := []int{1, 1, 2, 3}
	for i := range top {
		if top[i].SourceKey != wantKeys[i] || top[i].Rank != wantRanks[i] {
			t.Errorf("position %d: got %s rank %d, want %s rank %d",
				i, top[i].SourceKey, top[i].Rank, wantKeys[i], wantRanks[i])
		}
	}

	for i, key := range wantKeys {
		e, err := board.Rank(ctx, key)
		if err != nil {
			t.Fatalf("rank %s: %v", key, err)
		}
		if e.Rank != wantRanks[i] {
			t.Errorf("rank %s: got %d want %d", key, e.Rank, wantRanks[i])
		}
	}
}

func TestTreapBoard_Errors(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	if _, err := board.Rank(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := board.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if err := board.Upsert(ctx, Entry{}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestTreapBoard_SnapshotServesReads(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx, WithSnapshotInterval(10*time.Millisecond), WithTopCacheSize(2))
	defer board.Close()

	_ = board.Upsert(ctx, entry("x", 0.9))
	_ = board.Upsert(ctx, entry("y", 0.2))
	_ = board.Upsert(ctx, entry("z", 0.5))

	deadline := time.Now().Add(2 * time.Second)
	for {
		s := board.Snapshot()
		if s != nil && s.Version == board.version.Load() {
			if len(s.TopCache) != 2 || s.RankByKey["y"] != 3 {
				t.Fatalf("unexpected snapshot %+v", s)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot was not republished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	top, _ := board.TopN(ctx, 2)
	if top[0].SourceKey != "x" || top[1].SourceKey != "z" {
		t.Errorf("unexpected cached top %+v", top)
	}
	top, _ = board.TopN(ctx, 3)
	if len(top) != 3 || top[2].SourceKey != "y" {
		t.Errorf("expected fallback past cache size, got %+v", top)
	}
}

func TestTreapBoard_MatchesSortedOrder(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	rng := rand.New(rand.NewSource(7))
	scores := make(map[string]float64)
	for i := 0; i < 2000; i++ {
		key := fmt.Sprintf("src-%03d", rng.Intn(300))
		s := float64(rng.Intn(20)) / 20
		scores[key] = s
		_ = board.Upsert(ctx, entry(key, s))
	}

	top, _ := board.TopN(ctx, len(scores))
	if len(top) != len(scores) {
		t.Fatalf("expected %d rows, got %d", len(scores), len(top))
	}
	for i := 1; i < len(top); i++ {
		prev, cur := top[i-1], top[i]
		if prev.TrustedScore < cur.TrustedScore ||
			(prev.TrustedScore == cur.TrustedScore && prev.SourceKey > cur.SourceKey) {
			t.Fatalf("order violated at %d: %+v then %+v", i, prev, cur)
		}
		if cur.TrustedScore != scores[cur.SourceKey] {
			t.Fatalf("stale score for %s", cur.SourceKey)
		}
	}
}

func TestTreapBoard_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	board := NewTreapBoard(ctx, WithSnapshotInterval(time.Millisecond))
	defer board.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", w, i%20)
				_ = board.Upsert(ctx, entry(key, float64(i%10)/10))
				_, _ = board.Rank(ctx, key)
				_, _ = board.TopN(ctx, 5)
			}
		}(w)
	}
	wg.Wait()

	if count := board.Count(ctx); count != 160 {
		t.Errorf("expected 160 sources, got %d", count)
	}
}

func BenchmarkTreapBoard_Upsert(b *testing.B) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	keys := make([]string, 10000)
	for i := range keys {
		keys[i] = fmt.Sprintf("twitter:src-%d", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = board.Upsert(ctx, entry(keys[i%len(keys)], float64(i%1000)/1000))
	}
}

func BenchmarkTreapBoard_TopN(b *testing.B) {
	ctx := context.Background()
	board := NewTreapBoard(ctx)
	defer board.Close()

	for i := 0; i < 10000; i++ {
		_ = board.Upsert(ctx, entry(fmt.Sprintf("twitter:src-%d", i), float64(i%1000)/1000))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = board.TopN(ctx, 10)
	}
}
