package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diachrony/wordvec/pkg/embedding"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// buildTestArtifact makes an artifact with the given number of
// identical-length words so byte costs are predictable.
func buildTestArtifact(t *testing.T, words, dims int) *embedding.Artifact {
	t.Helper()
	b := embedding.NewBuilder(embedding.BuilderOptions{Dimensions: dims})
	vec := make([]float32, dims)
	for i := 0; i < words; i++ {
		vec[0] = float32(i + 1)
		require.NoError(t, b.Add(fmt.Sprintf("word%04d", i), vec))
	}
	art, err := b.Build()
	require.NoError(t, err)
	return art
}

// countingLoader wraps a fixed artifact per path and counts invocations.
type countingLoader struct {
	mu        sync.Mutex
	artifacts map[string]*embedding.Artifact
	errs      map[string]error
	calls     atomic.Int64
	block     chan struct{} // if non-nil, loads wait on it
}

func (l *countingLoader) load(path string) (*embedding.Artifact, error) {
	l.calls.Add(1)
	if l.block != nil {
		<-l.block
	}
	key := filepath.Base(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.errs[key]; ok {
		return nil, err
	}
	art, ok := l.artifacts[key]
	if !ok {
		return nil, fmt.Errorf("no artifact registered for %q", key)
	}
	return art, nil
}

func newTestCache(t *testing.T, loader *countingLoader, opts Options) *PathCache {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewPathCache(loader.load, opts)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "glove.vec", Key("/data/embeddings/glove.vec"))
	assert.Equal(t, "glove.vec", Key("glove.vec"))
	assert.Equal(t, "w.vec", Key("/other/dir/w.vec"))
}

func TestGetOrLoadHitAndMiss(t *testing.T) {
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"a.vec": buildTestArtifact(t, 10, 4),
	}}
	c := newTestCache(t, loader, Options{})
	ctx := context.Background()

	h1, err := c.GetOrLoad(ctx, "/data/a.vec")
	require.NoError(t, err)
	defer h1.Close()

	h2, err := c.GetOrLoad(ctx, "/data/a.vec")
	require.NoError(t, err)
	defer h2.Close()

	assert.True(t, h1.Same(h2))
	assert.Equal(t, int64(1), loader.calls.Load())

	s := c.Snapshot()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 1, s.EntriesResident)
	assert.InDelta(t, 0.5, s.HitRatio, 1e-9)
}

func TestSameBaseNameSharesSlot(t *testing.T) {
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"w.vec": buildTestArtifact(t, 10, 4),
	}}
	c := newTestCache(t, loader, Options{})
	ctx := context.Background()

	h1, err := c.GetOrLoad(ctx, "/dir1/w.vec")
	require.NoError(t, err)
	defer h1.Close()
	h2, err := c.GetOrLoad(ctx, "/dir2/w.vec")
	require.NoError(t, err)
	defer h2.Close()

	assert.True(t, h1.Same(h2))
	assert.Equal(t, int64(1), loader.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestLoadErrorNotCached(t *testing.T) {
	loader := &countingLoader{
		artifacts: map[string]*embedding.Artifact{},
		errs:      map[string]error{"bad.vec": errors.New("parse failure")},
	}
	c := newTestCache(t, loader, Options{})
	ctx := context.Background()

	_, err := c.GetOrLoad(ctx, "bad.vec")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Bytes())

	// The failure is not memoized: the next request tries again.
	_, err = c.GetOrLoad(ctx, "bad.vec")
	require.Error(t, err)
	assert.Equal(t, int64(2), loader.calls.Load())
}

func TestMissCoalescing(t *testing.T) {
	block := make(chan struct{})
	loader := &countingLoader{
		artifacts: map[string]*embedding.Artifact{
			"a.vec": buildTestArtifact(t, 10, 4),
		},
		block: block,
	}
	c := newTestCache(t, loader, Options{})

	const callers = 25
	var wg sync.WaitGroup
	handles := make([]*embedding.Handle, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = c.GetOrLoad(context.Background(), "a.vec")
		}(i)
	}
	// Give the callers time to pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, handles[i])
		assert.True(t, handles[0].Same(handles[i]))
		handles[i].Close()
	}
	// Some stragglers may arrive after the entry is resident and hit
	// instead, so at most one load but possibly fewer misses than
	// callers; the load count is the property under test.
	assert.Equal(t, int64(1), loader.calls.Load())
}

func TestWaiterCancellationDoesNotAbortLoad(t *testing.T) {
	block := make(chan struct{})
	loader := &countingLoader{
		artifacts: map[string]*embedding.Artifact{
			"a.vec": buildTestArtifact(t, 10, 4),
		},
		block: block,
	}
	c := newTestCache(t, loader, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(ctx, "a.vec")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	// The load keeps running and publishes its result.
	close(block)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)

	h, err := c.GetOrLoad(context.Background(), "a.vec")
	require.NoError(t, err)
	h.Close()
	assert.Equal(t, int64(1), loader.calls.Load())
}

func TestEntryCapEvictsLRU(t *testing.T) {
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"a.vec": buildTestArtifact(t, 10, 4),
		"b.vec": buildTestArtifact(t, 10, 4),
		"c.vec": buildTestArtifact(t, 10, 4),
	}}
	c := newTestCache(t, loader, Options{MaxEntries: 2})
	ctx := context.Background()

	for _, p := range []string{"a.vec", "b.vec"} {
		h, err := c.GetOrLoad(ctx, p)
		require.NoError(t, err)
		h.Close()
	}

	// Touch a so b becomes the eviction candidate.
	h, err := c.GetOrLoad(ctx, "a.vec")
	require.NoError(t, err)
	h.Close()

	h, err = c.GetOrLoad(ctx, "c.vec")
	require.NoError(t, err)
	h.Close()

	assert.Equal(t, 2, c.Len())
	s := c.Snapshot()
	keys := []string{s.Entries[0].Key, s.Entries[1].Key}
	assert.ElementsMatch(t, []string{"a.vec", "c.vec"}, keys)
	assert.Equal(t, uint64(1), s.Evictions)
	require.NotNil(t, s.LastEviction)
}

func TestByteBudgetEvictsUntilFit(t *testing.T) {
	// word cost: 4*4 + 32 + 8 = 56 bytes per word, 100 words = 5600.
	big := buildTestArtifact(t, 100, 4)
	small := buildTestArtifact(t, 10, 4)
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"big1.vec":  big,
		"big2.vec":  buildTestArtifact(t, 100, 4),
		"small.vec": small,
	}}
	budget := big.ByteCost() + small.ByteCost() + 10
	c := newTestCache(t, loader, Options{MaxEntries: 10, MaxBytes: budget})
	ctx := context.Background()

	h, err := c.GetOrLoad(ctx, "big1.vec")
	require.NoError(t, err)
	h.Close()
	h, err = c.GetOrLoad(ctx, "small.vec")
	require.NoError(t, err)
	h.Close()
	assert.Equal(t, 2, c.Len())

	// big2 does not fit alongside both; the LRU entry (big1) goes.
	h, err = c.GetOrLoad(ctx, "big2.vec")
	require.NoError(t, err)
	h.Close()

	s := c.Snapshot()
	assert.LessOrEqual(t, s.BytesResident, budget)
	assert.GreaterOrEqual(t, s.Evictions, uint64(1))
	for _, e := range s.Entries {
		assert.NotEqual(t, "big1.vec", e.Key)
	}
}

func TestOverLimitArtifactRejected(t *testing.T) {
	art := buildTestArtifact(t, 100, 4)
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"huge.vec": art,
	}}
	c := newTestCache(t, loader, Options{MaxBytes: art.ByteCost() - 1})

	_, err := c.GetOrLoad(context.Background(), "huge.vec")
	assert.ErrorIs(t, err, ErrOverLimit)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Bytes())
}

func TestEvictionWhileHeldKeepsArtifactUsable(t *testing.T) {
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"a.vec": buildTestArtifact(t, 10, 4),
		"b.vec": buildTestArtifact(t, 10, 4),
	}}
	c := newTestCache(t, loader, Options{MaxEntries: 1})
	ctx := context.Background()

	held, err := c.GetOrLoad(ctx, "a.vec")
	require.NoError(t, err)

	// Loading b evicts a while the caller still holds its handle.
	h, err := c.GetOrLoad(ctx, "b.vec")
	require.NoError(t, err)
	h.Close()

	assert.Equal(t, 1, c.Len())
	assert.Nil(t, c.artifactFor("a.vec"))

	// The held handle still reads real data.
	art := held.Artifact()
	assert.Equal(t, 10, art.Len())
	_, ok := art.Lookup("word0003")
	assert.True(t, ok)
	held.Close()

	// A fresh request reloads the evicted artifact.
	h, err = c.GetOrLoad(ctx, "a.vec")
	require.NoError(t, err)
	h.Close()
	assert.Equal(t, int64(3), loader.calls.Load())
}

func TestAggregateBytesTracksResidentSet(t *testing.T) {
	a := buildTestArtifact(t, 10, 4)
	b := buildTestArtifact(t, 20, 4)
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"a.vec": a,
		"b.vec": b,
	}}
	c := newTestCache(t, loader, Options{})
	ctx := context.Background()

	h, err := c.GetOrLoad(ctx, "a.vec")
	require.NoError(t, err)
	h.Close()
	assert.Equal(t, a.ByteCost(), c.Bytes())

	h, err = c.GetOrLoad(ctx, "b.vec")
	require.NoError(t, err)
	h.Close()
	assert.Equal(t, a.ByteCost()+b.ByteCost(), c.Bytes())

	require.True(t, c.Purge("a.vec"))
	assert.Equal(t, b.ByteCost(), c.Bytes())
	assert.False(t, c.Purge("a.vec"))

	s := c.Snapshot()
	assert.Equal(t, a.ByteCost()+b.ByteCost(), s.PeakBytes)
}

func TestSnapshotOrderedByRecency(t *testing.T) {
	loader := &countingLoader{artifacts: map[string]*embedding.Artifact{
		"a.vec": buildTestArtifact(t, 10, 4),
		"b.vec": buildTestArtifact(t, 10, 4),
	}}
	c := newTestCache(t, loader, Options{})
	ctx := context.Background()

	for _, p := range []string{"a.vec", "b.vec", "a.vec"} {
		h, err := c.GetOrLoad(ctx, p)
		require.NoError(t, err)
		h.Close()
	}

	s := c.Snapshot()
	require.Len(t, s.Entries, 2)
	assert.Equal(t, "a.vec", s.Entries[0].Key)
	assert.Equal(t, "b.vec", s.Entries[1].Key)
	assert.Equal(t, 10, s.Entries[0].WordCount)
	assert.False(t, s.Entries[0].LastUsed.Before(s.Entries[1].LastUsed))
}
