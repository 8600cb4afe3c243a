package branches

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
)

// Registry maps branch ids to branches. It is created once per process and lives as
// long as the process; nothing is persisted.
//
// The registry lock only guards the map. Copying a parent's history happens under
// the parent's branch lock and outside the registry lock, so a slow model call on one
// branch never blocks unrelated branches.
type Registry struct {
	mu       sync.RWMutex
	branches map[string]*Branch
	now      func() time.Time
}

type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		branches: map[string]*Branch{},
		now:      time.Now,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Create registers a new branch. If parentID is not empty the parent must exist, and the
// new branch starts with a deep copy of the parent's history as of the moment any
// in-flight send on the parent has completed.
func (r *Registry) Create(ctx context.Context, id string, parentID string) (Descriptor, error) {
	if strings.TrimSpace(id) == "" {
		return Descriptor{}, &InvalidInputError{Field: "branchId", Reason: "must not be empty"}
	}

	r.mu.RLock()
	_, exists := r.branches[id]
	var parent *Branch
	if parentID != "" {
		parent = r.branches[parentID]
	}
	r.mu.RUnlock()

	if exists {
		return Descriptor{}, &DuplicateBranchError{BranchID: id}
	}
	if parentID != "" && parent == nil {
		return Descriptor{}, &BranchNotFoundError{BranchID: parentID, Parent: true}
	}

	history := conversation.NewHistoryStore()
	if parent != nil {
		if err := parent.lock.Lock(ctx); err != nil {
			return Descriptor{}, errors.Wrapf(err, "waiting for parent branch %q", parentID)
		}
		history.CopyFrom(parent.history)
		parent.lock.Unlock()
	}

	b := newBranch(id, parentID, history, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	// another Create for the same id may have won while we were copying
	if _, exists := r.branches[id]; exists {
		return Descriptor{}, &DuplicateBranchError{BranchID: id}
	}
	r.branches[id] = b

	return b.Descriptor(), nil
}

func (r *Registry) Get(id string) (*Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.branches[id]
	if !ok {
		return nil, &BranchNotFoundError{BranchID: id}
	}
	return b, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.branches)
}

// List returns the registered branches ordered by id. The sequence is lazy: each range
// over it takes a fresh view of the registry, so it can be iterated any number of times.
func (r *Registry) List() iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		r.mu.RLock()
		ids := make([]string, 0, len(r.branches))
		for id := range r.branches {
			ids = append(ids, id)
		}
		r.mu.RUnlock()
		sort.Strings(ids)

		for _, id := range ids {
			b, err := r.Get(id)
			if err != nil {
				continue
			}
			if !yield(b.Descriptor()) {
				return
			}
		}
	}
}
