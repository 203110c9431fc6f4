package resolver

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the pooled resolver's concurrency bound when
// unset.
const DefaultMaxConcurrent = 16

// Pooled wraps a Resolver with a concurrency bound and uniform error
// classification. Callers beyond the bound block until a slot frees or
// their context is cancelled. Any failure from the inner resolver is
// wrapped in ErrResolutionFailed.
type Pooled struct {
	inner Resolver
	slots *semaphore.Weighted
}

// NewPooled wraps inner with at most maxConcurrent in-flight
// resolutions. Zero or negative means DefaultMaxConcurrent.
func NewPooled(inner Resolver, maxConcurrent int) *Pooled {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Pooled{
		inner: inner,
		slots: semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Resolve implements Resolver.
func (p *Pooled) Resolve(ctx context.Context, databaseID int32, collection string) (Specifier, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return Specifier{}, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}
	defer p.slots.Release(1)

	spec, err := p.inner.Resolve(ctx, databaseID, collection)
	if err != nil {
		return Specifier{}, fmt.Errorf("%w: db %d collection %q: %v",
			ErrResolutionFailed, databaseID, collection, err)
	}
	if err := spec.Validate(); err != nil {
		return Specifier{}, fmt.Errorf("%w: db %d collection %q: %v",
			ErrResolutionFailed, databaseID, collection, err)
	}
	return spec, nil
}
