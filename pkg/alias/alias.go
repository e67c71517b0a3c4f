// Package alias defines the symbolic alias that client requests name and
// that the scheduler resolves to a concrete backend process.
package alias

import (
	"slices"
	"strings"
)

// BackendKind identifies a concrete inference engine family. The set is
// closed in this package but extensible: adding a backend means adding a
// new inference.Backend implementation and a BackendKind constant for it,
// not modifying the admission algorithm.
type BackendKind string

const (
	// LlamaCpp identifies the llama.cpp server backend.
	LlamaCpp BackendKind = "llamacpp"
	// Ollama identifies the Ollama daemon backend.
	Ollama BackendKind = "ollama"
)

// Model identifies the underlying model an alias points at, independent of
// context size or launch flags.
type Model struct {
	// ModelID is the backend-specific model identifier: a path to a .gguf
	// file for llamacpp, or a tag understood by the Ollama model store for
	// ollama.
	ModelID string
	// Backend is the inference engine family that serves ModelID.
	Backend BackendKind
}

// Equal reports whether m and other identify the same model.
func (m Model) Equal(other Model) bool {
	return m.ModelID == other.ModelID && m.Backend == other.Backend
}

// DefaultContextSize is the context window used when an alias config entry
// does not specify n_ctx. It is a convention, not a guarantee that it fits
// any given model.
const DefaultContextSize = 4096

// Alias is the immutable, structurally-comparable value a client request
// names. Two aliases are Equal iff every field is equal, including the
// order of CommandParams.
type Alias struct {
	// Name is the symbolic name a client request specifies, e.g. "mistral".
	Name string
	// Model is the concrete model and backend this alias resolves to.
	Model Model
	// NCtx is the context window size requested, in tokens. Must be >= 1.
	NCtx int
	// CommandParams are additional backend-specific command-line arguments,
	// in the order they should be passed to the backend's launch command.
	CommandParams []string
}

// Equal reports whether a and other have identical fields, including the
// order of CommandParams. It is the Go analogue of the original
// implementation's structural (pydantic) equality.
func (a Alias) Equal(other Alias) bool {
	return a.Name == other.Name &&
		a.Model.Equal(other.Model) &&
		a.NCtx == other.NCtx &&
		slices.Equal(a.CommandParams, other.CommandParams)
}

// ResourceKey is the key under which a resource model is cached: backend,
// model identifier, and command params, but deliberately not NCtx, since
// NCtx is the free variable the affine resource model is parameterized by.
type ResourceKey struct {
	Backend       BackendKind
	ModelID       string
	CommandParams string // a.CommandParams, comma-joined in order.
}

// Key returns the ResourceKey under which a's resource model is cached.
//
// CommandParams containing "::" would corrupt the persisted cache's
// "backend::model::params" string key; resourcemodel.Cache does not persist
// such entries. A "," inside a single param is not detected: the params are
// joined as is, so ["a,b"] and ["a", "b"] share one key.
func (a Alias) Key() ResourceKey {
	return ResourceKey{
		Backend:       a.Model.Backend,
		ModelID:       a.Model.ModelID,
		CommandParams: strings.Join(a.CommandParams, ","),
	}
}
