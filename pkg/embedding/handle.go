package embedding

import "sync/atomic"

// Handle is a shared, ref-counted, read-only reference to an Artifact.
//
// Cache maps store handles, not raw artifact pointers. Eviction drops the
// cache's handle; the artifact stays valid for as long as any other
// handle exists. Request handlers acquire their own handle for the
// duration of a query and close it when done.
//
// Example:
//
//	h := cache.GetOrLoad(ctx, path) // cache-owned handle
//	mine := h.Acquire()
//	defer mine.Close()
//	emb, ok := mine.Artifact().Lookup("king")
type Handle struct {
	shared *sharedArtifact
}

// sharedArtifact carries the refcount for all handles to one artifact.
type sharedArtifact struct {
	artifact *Artifact
	refs     atomic.Int64
}

// NewHandle wraps a freshly built artifact in a handle with refcount 1.
func NewHandle(a *Artifact) *Handle {
	s := &sharedArtifact{artifact: a}
	s.refs.Store(1)
	return &Handle{shared: s}
}

// Artifact returns the referenced artifact. The caller must not use the
// result after closing its last handle.
func (h *Handle) Artifact() *Artifact {
	return h.shared.artifact
}

// Acquire returns a new handle to the same artifact, incrementing the
// refcount. Safe for concurrent use.
func (h *Handle) Acquire() *Handle {
	h.shared.refs.Add(1)
	return &Handle{shared: h.shared}
}

// Close releases this handle. The refcount drops by one; when it reaches
// zero the artifact is unreferenced and reclaimable by the garbage
// collector. Closing a handle more than once is a no-op.
func (h *Handle) Close() {
	if h == nil || h.shared == nil {
		return
	}
	s := h.shared
	h.shared = nil
	s.refs.Add(-1)
}

// Refs returns the current refcount. Intended for tests and diagnostics;
// the value may be stale by the time it is observed.
func (h *Handle) Refs() int64 {
	return h.shared.refs.Load()
}

// Same reports whether two handles reference the same underlying
// artifact. A handle acquired before an eviction-and-reload compares
// unequal to handles on the replacement.
func (h *Handle) Same(other *Handle) bool {
	if h == nil || other == nil || h.shared == nil || other.shared == nil {
		return false
	}
	return h.shared == other.shared
}
