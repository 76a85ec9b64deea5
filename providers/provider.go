// Package providers defines the provider client capability: one
// Lister variant per resource type, discovered through a registry.
// Adding a resource type means registering a variant; the collector
// engine never changes.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/kerava/types"
)

// RawResource is one provider resource before normalization. The
// lister owns pagination: a returned slice is the fully drained
// listing for its account/region cell.
type RawResource struct {
	ID         string
	Name       string
	Attributes map[string]any
}

// Lister lists all resources of one type in one account/region scope.
type Lister interface {
	List(ctx context.Context, account types.Account, region string) ([]RawResource, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, account types.Account, region string) ([]RawResource, error)

// List implements Lister.
func (f ListerFunc) List(ctx context.Context, account types.Account, region string) ([]RawResource, error) {
	return f(ctx, account, region)
}

// ListerFactory builds a lister scoped to an account and region.
type ListerFactory func(ctx context.Context, account types.Account, region string) (Lister, error)

type registration struct {
	factory ListerFactory
	global  bool
}

// Registry maps resource types to lister factories.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]registration
}

// NewRegistry creates an empty lister registry.
func NewRegistry() *Registry {
	return &Registry{variants: make(map[string]registration)}
}

// RegisterOption configures a registration.
type RegisterOption func(*registration)

// Global marks a resource type as not region-scoped (e.g. s3): the
// engine expands it to a single task per account.
func Global() RegisterOption {
	return func(r *registration) { r.global = true }
}

// Register adds a lister factory for a resource type.
func (r *Registry) Register(resourceType string, factory ListerFactory, opts ...RegisterOption) {
	reg := registration{factory: factory}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[resourceType] = reg
}

// Lister builds a scoped lister for a resource type.
func (r *Registry) Lister(ctx context.Context, resourceType string, account types.Account, region string) (Lister, error) {
	r.mu.RLock()
	reg, exists := r.variants[resourceType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no lister registered for resource type %q", resourceType)
	}
	return reg.factory(ctx, account, region)
}

// IsGlobal reports whether a resource type is region-independent.
func (r *Registry) IsGlobal(resourceType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.variants[resourceType].global
}

// Has reports whether a resource type has a registered variant.
func (r *Registry) Has(resourceType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.variants[resourceType]
	return ok
}

// Types returns the registered resource types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.variants))
	for name := range r.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
