package alias

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates that no alias with the requested name is registered.
var ErrNotFound = errors.New("alias not found")

// DuplicateAliasConflictError indicates that a source attempted to register
// an alias whose name is already registered with a structurally different
// body. It carries both values so the caller can report what disagreed.
type DuplicateAliasConflictError struct {
	Name     string
	Existing Alias
	New      Alias
}

func (e *DuplicateAliasConflictError) Error() string {
	return fmt.Sprintf(
		"alias %q already registered with a different configuration: existing=%+v new=%+v",
		e.Name, e.Existing, e.New,
	)
}

// Registry maps alias names to their definitions. It is populated once at
// startup (see LoadAll) and is safe for concurrent reads and writes thereafter,
// though in ordinary operation it is not mutated after startup.
type Registry struct {
	mu      sync.RWMutex
	aliases map[string]Alias
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{aliases: make(map[string]Alias)}
}

// Add inserts alias if no alias of the same name is already present. If an
// alias with the same name but a structurally different body already
// exists, Add returns a *DuplicateAliasConflictError and leaves the
// registry unchanged. Adding a structurally identical alias twice is a
// no-op, not a conflict — this is what lets the same alias be declared in
// both the global and project config sources.
func (r *Registry) Add(a Alias) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.aliases[a.Name]
	if !ok {
		r.aliases[a.Name] = a
		return nil
	}
	if existing.Equal(a) {
		return nil
	}
	return &DuplicateAliasConflictError{Name: a.Name, Existing: existing, New: a}
}

// Get returns the alias registered under name, or ErrNotFound if none is.
func (r *Registry) Get(name string) (Alias, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.aliases[name]
	if !ok {
		return Alias{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

// Set overwrites (or inserts) the alias registered under a.Name,
// unconditionally. It is used by the alias-override endpoint to let an
// operator redirect future admissions without editing config files; unlike
// Add, it never returns a conflict, since an explicit override always wins.
func (r *Registry) Set(a Alias) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[a.Name] = a
}

// List returns every registered alias, in no particular order.
func (r *Registry) List() []Alias {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Alias, 0, len(r.aliases))
	for _, a := range r.aliases {
		out = append(out, a)
	}
	return out
}

// LoadAll applies Add to every alias from each source in order, so that
// later sources (e.g. a project config) are rejected if they disagree with
// an earlier source (e.g. the global config) under the same name. It
// returns the first conflict encountered.
func (r *Registry) LoadAll(sources ...[]Alias) error {
	for _, source := range sources {
		for _, a := range source {
			if err := r.Add(a); err != nil {
				return err
			}
		}
	}
	return nil
}
