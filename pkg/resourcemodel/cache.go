// Package resourcemodel predicts and caches how much RAM and VRAM a given
// alias will need once running, as an affine function of its context size.
package resourcemodel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/logging"
)

// Model is the affine resource model (r0, r1, v0, v1): predicted RAM is
// r0 + r1*n_ctx megabytes, predicted VRAM is v0 + v1*n_ctx megabytes.
type Model struct {
	R0, R1, V0, V1 float64
}

// Predict returns the RAM and VRAM (in MB) a server running with the given
// context size is expected to need under this model.
func (m Model) Predict(nctx int) (ramMB, vramMB float64) {
	x := float64(nctx)
	return m.R0 + m.R1*x, m.V0 + m.V1*x
}

// Measurer is the external collaborator that actually measures a fresh
// alias's resource model, e.g. by launching it at two different context
// sizes and fitting a line through the observed usage. modelmux does not
// implement measurement itself; callers inject one.
type Measurer interface {
	Measure(ctx context.Context, a alias.Alias) (Model, error)
}

// Cache maps an alias's ResourceKey (backend, model, command params —
// deliberately not n_ctx) to its measured Model, persisting it to a JSON
// file between process runs. It is safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	path   string
	log    logging.Logger
	models map[alias.ResourceKey]Model
}

// NewCache constructs a Cache backed by the JSON file at path. The file is
// read once, tolerantly: an entry whose key doesn't parse or names an
// unknown backend is skipped, and a missing file or one that doesn't decode
// as a whole (including one with a non-numeric value) leaves the cache
// empty, matching lazyllama's _load_resource_cache's blanket try/except.
func NewCache(path string, log logging.Logger) *Cache {
	c := &Cache{path: path, log: log, models: make(map[alias.ResourceKey]Model)}
	c.load()
	return c
}

// cacheKeyString renders a ResourceKey as the "backend::model::params"
// string lazyllama's cache uses. A key whose CommandParams or ModelID
// contains "::", or whose Backend contains "," or ":", would be ambiguous to
// parse back out, so persist skips it (GetOrMeasure still returns the
// model) — logged at Warn rather than silently corrupting the file, a
// deliberate deviation from the original, which joins unconditionally. A
// "," inside a single command param cannot be seen here, since
// CommandParams is already comma-joined, and such a key is persisted as is.
func cacheKeyString(k alias.ResourceKey) (string, bool) {
	if strings.Contains(k.CommandParams, "::") || strings.ContainsAny(string(k.Backend), ",:") || strings.Contains(k.ModelID, "::") {
		return "", false
	}
	return fmt.Sprintf("%s::%s::%s", k.Backend, k.ModelID, k.CommandParams), true
}

func parseCacheKeyString(s string) (alias.ResourceKey, bool) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return alias.ResourceKey{}, false
	}
	backend, model, params := parts[0], parts[1], parts[2]
	switch alias.BackendKind(backend) {
	case alias.LlamaCpp, alias.Ollama:
	default:
		return alias.ResourceKey{}, false
	}
	return alias.ResourceKey{
		Backend:       alias.BackendKind(backend),
		ModelID:       model,
		CommandParams: params,
	}, true
}

type modelJSON = [4]float64

func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return // missing or unreadable cache is not fatal; start empty.
	}

	var raw map[string]modelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		c.log.WithError(err).Warn("resource model cache is corrupt, starting empty")
		return
	}

	for keyStr, vals := range raw {
		key, ok := parseCacheKeyString(keyStr)
		if !ok {
			continue
		}
		c.models[key] = Model{R0: vals[0], R1: vals[1], V0: vals[2], V1: vals[3]}
	}
}

// persist best-effort writes the current cache contents to disk. Failure is
// logged, not returned, matching lazyllama's _persist_resource_cache
// swallowing every exception.
func (c *Cache) persist() {
	data := make(map[string]modelJSON, len(c.models))
	for key, m := range c.models {
		keyStr, ok := cacheKeyString(key)
		if !ok {
			c.log.WithField("key", key).Warn("skipping persistence of resource model with an unescapable cache key")
			continue
		}
		data[keyStr] = modelJSON{m.R0, m.R1, m.V0, m.V1}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		c.log.WithError(err).Warn("failed to encode resource model cache")
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.log.WithError(err).Warn("failed to create resource model cache directory")
		return
	}
	if err := os.WriteFile(c.path, encoded, 0o644); err != nil {
		c.log.WithError(err).Warn("failed to write resource model cache")
	}
}

// Peek returns the cached Model for a's ResourceKey without measuring it,
// for callers (the server manager's usage accounting and eviction scoring)
// that only ever ask about aliases that were already measured when their
// server was spawned and must not trigger a fresh measurement as a side
// effect of simply summing up current usage.
func (c *Cache) Peek(a alias.Alias) (Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.models[a.Key()]
	return m, ok
}

// GetOrMeasure returns the cached Model for a's ResourceKey, measuring it
// with measurer and persisting the result if it is not already cached.
// Measurement runs synchronously and under the cache's lock: a second
// caller asking about the same alias concurrently blocks on the first
// measurement rather than triggering a duplicate one.
func (c *Cache) GetOrMeasure(ctx context.Context, a alias.Alias, measurer Measurer) (Model, error) {
	key := a.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[key]; ok {
		return m, nil
	}

	m, err := measurer.Measure(ctx, a)
	if err != nil {
		return Model{}, fmt.Errorf("measuring resource model for alias %q: %w", a.Name, err)
	}

	c.models[key] = m
	c.persist()
	return m, nil
}
