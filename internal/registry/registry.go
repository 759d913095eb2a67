// Package registry maps agent slugs to capabilities. Routing is by string
// tag: callers name the agent they want and the registry hands back the
// matching capability, so adding an agent kind never touches dispatch.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/agent"
)

// Registry holds the registered capabilities.
type Registry struct {
	mu     sync.RWMutex
	bySlug map[string]agent.Capability
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		bySlug: make(map[string]agent.Capability),
		logger: logger,
	}
}

// Register adds a capability under its slug. Duplicate slugs are a
// programming error and fail loudly.
func (r *Registry) Register(c agent.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slug := c.Slug()
	if slug == "" {
		return fmt.Errorf("capability has empty slug")
	}
	if _, exists := r.bySlug[slug]; exists {
		return fmt.Errorf("capability %q already registered", slug)
	}
	r.bySlug[slug] = c
	r.logger.Info("Capability registered", zap.String("slug", slug))
	return nil
}

// Get returns the capability registered under slug.
func (r *Registry) Get(slug string) (agent.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySlug[slug]
	return c, ok
}

// List returns all capability descriptions, sorted by slug for stable
// API output.
func (r *Registry) List() []agent.Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.Description, 0, len(r.bySlug))
	for _, c := range r.bySlug {
		out = append(out, c.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
