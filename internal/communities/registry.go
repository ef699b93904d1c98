// Package communities owns the shared list of tracked communities.
package communities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/qepting91/reddit-top/internal/ingest"
)

var (
	ErrAlreadyPresent = errors.New("community already present")
	ErrNotRegistered  = errors.New("community not registered")
	ErrInvalidName    = errors.New("invalid community name")
)

// Store persists the community list. Append and Remove compare names
// case-insensitively and report whether they changed anything.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Append(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) (bool, error)
}

// Registry is the in-process view of the community list. Every mutation
// reads, appends and persists under one lock, so concurrent adds of the same
// name produce exactly one entry.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	store  Store
	logger *slog.Logger
}

// NewRegistry returns an empty registry. A nil store keeps the list in memory.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger}
}

// Seed loads the persisted list and appends any seed names it lacks.
func (r *Registry) Seed(ctx context.Context, seed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	if r.store != nil {
		loaded, err := r.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load communities: %w", err)
		}
		names = ingest.Merge(nil, loaded...)
	}
	for _, n := range seed {
		if !ingest.ValidName(n) || ingest.Contains(names, n) {
			continue
		}
		if r.store != nil {
			if _, err := r.store.Append(ctx, n); err != nil {
				return fmt.Errorf("persist %s: %w", n, err)
			}
		}
		names = append(names, n)
	}
	r.names = names
	r.logger.Info("Community list loaded", "count", len(names))
	return nil
}

// List returns a point-in-time copy of the list.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Contains reports whether name is tracked, ignoring case.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ingest.Contains(r.names, ingest.CleanName(name))
}

// Add appends name and returns it in canonical form.
func (r *Registry) Add(ctx context.Context, name string) (string, error) {
	name = ingest.CleanName(name)
	if !ingest.ValidName(name) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ingest.Contains(r.names, name) {
		return name, fmt.Errorf("%s: %w", name, ErrAlreadyPresent)
	}
	if r.store != nil {
		added, err := r.store.Append(ctx, name)
		if err != nil {
			return "", fmt.Errorf("persist %s: %w", name, err)
		}
		if !added {
			// another process got there first
			r.names = append(r.names, name)
			return name, fmt.Errorf("%s: %w", name, ErrAlreadyPresent)
		}
	}
	r.names = append(r.names, name)
	r.logger.Info("Community added", "community", name, "count", len(r.names))
	return name, nil
}

// Remove deletes name from the list.
func (r *Registry) Remove(ctx context.Context, name string) error {
	name = ingest.CleanName(name)
	if !ingest.ValidName(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.names, func(n string) bool { return strings.EqualFold(n, name) })
	if idx < 0 {
		return fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	if r.store != nil {
		if _, err := r.store.Remove(ctx, name); err != nil {
			return fmt.Errorf("persist removal of %s: %w", name, err)
		}
	}
	r.names = slices.Delete(r.names, idx, idx+1)
	r.logger.Info("Community removed", "community", name, "count", len(r.names))
	return nil
}
