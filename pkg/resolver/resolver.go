// Package resolver maps logical collections to embedding artifact
// specifiers. A resolver answers "which embedding file backs this
// collection?" with one of three outcomes: no embeddings, the
// deployment default, or a custom path.
//
// The package ships a persistent badger-backed Store for collection
// mappings and a Pooled adapter that bounds concurrent resolutions and
// normalizes failures.
package resolver

import (
	"context"
	"errors"
	"fmt"
)

// ErrResolutionFailed wraps any resolver failure so callers can treat
// resolution errors as one infrastructure class.
var ErrResolutionFailed = errors.New("resolver: resolution failed")

// Kind classifies a resolution outcome.
type Kind string

const (
	// KindNone means the collection has embeddings disabled.
	KindNone Kind = "none"

	// KindDefault means the collection uses the deployment-wide
	// default artifact.
	KindDefault Kind = "default"

	// KindCustom means the collection names its own artifact path.
	KindCustom Kind = "custom"
)

// Specifier is a resolved embedding source for one collection.
type Specifier struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path,omitempty"` // set only for KindCustom
}

// None returns the disabled specifier.
func None() Specifier { return Specifier{Kind: KindNone} }

// Default returns the deployment-default specifier.
func Default() Specifier { return Specifier{Kind: KindDefault} }

// Custom returns a specifier naming its own artifact path.
func Custom(path string) Specifier {
	return Specifier{Kind: KindCustom, Path: path}
}

// Validate checks internal consistency.
func (s Specifier) Validate() error {
	switch s.Kind {
	case KindNone, KindDefault:
		if s.Path != "" {
			return fmt.Errorf("specifier kind %q must not carry a path", s.Kind)
		}
		return nil
	case KindCustom:
		if s.Path == "" {
			return errors.New("custom specifier requires a path")
		}
		return nil
	default:
		return fmt.Errorf("unknown specifier kind %q", s.Kind)
	}
}

// Resolver resolves a collection within a database to an embedding
// specifier. Implementations must be safe for concurrent use. An
// unmapped collection resolves to KindNone, not an error.
type Resolver interface {
	Resolve(ctx context.Context, databaseID int32, collection string) (Specifier, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, databaseID int32, collection string) (Specifier, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, databaseID int32, collection string) (Specifier, error) {
	return f(ctx, databaseID, collection)
}

// Static is a fixed in-memory resolver, mainly for tests and embedded
// deployments. The zero value resolves everything to KindNone.
type Static struct {
	mappings map[staticKey]Specifier
}

type staticKey struct {
	databaseID int32
	collection string
}

// NewStatic builds a static resolver from explicit mappings.
func NewStatic() *Static {
	return &Static{mappings: make(map[staticKey]Specifier)}
}

// Map registers a specifier for a collection. Not safe to call
// concurrently with Resolve.
func (s *Static) Map(databaseID int32, collection string, spec Specifier) *Static {
	if s.mappings == nil {
		s.mappings = make(map[staticKey]Specifier)
	}
	s.mappings[staticKey{databaseID, collection}] = spec
	return s
}

// Resolve implements Resolver.
func (s *Static) Resolve(_ context.Context, databaseID int32, collection string) (Specifier, error) {
	if spec, ok := s.mappings[staticKey{databaseID, collection}]; ok {
		return spec, nil
	}
	return None(), nil
}
