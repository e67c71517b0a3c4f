// Package config loads the YAML alias sources a modelmux deployment is
// configured from: a user-wide global config and an optional per-project
// config, both sharing the same aliases schema.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modelmux/modelmux/pkg/alias"
)

// AliasEntry is the YAML shape of a single entry under an `aliases:` map.
// It mirrors lazyllama's AliasConfig pydantic model field-for-field.
type AliasEntry struct {
	ModelName     string   `yaml:"model_name"`
	Backend       string   `yaml:"backend"`
	NCtx          int      `yaml:"n_ctx"`
	CommandParams []string `yaml:"command_params"`
}

// toAlias converts entry into its domain representation under name. Nctx
// defaults to alias.DefaultContextSize when the YAML omits it (the zero
// value for an absent int field).
func (e AliasEntry) toAlias(name string) (alias.Alias, error) {
	backend, err := parseBackend(e.Backend)
	if err != nil {
		return alias.Alias{}, fmt.Errorf("alias %q: %w", name, err)
	}

	nctx := e.NCtx
	if nctx == 0 {
		nctx = alias.DefaultContextSize
	}

	return alias.Alias{
		Name: name,
		Model: alias.Model{
			ModelID: e.ModelName,
			Backend: backend,
		},
		NCtx:          nctx,
		CommandParams: e.CommandParams,
	}, nil
}

func parseBackend(s string) (alias.BackendKind, error) {
	switch alias.BackendKind(s) {
	case alias.LlamaCpp, alias.Ollama:
		return alias.BackendKind(s), nil
	default:
		return "", fmt.Errorf("unrecognized backend %q", s)
	}
}

// Base is the schema common to both the global and project config files: a
// map from alias name to its definition.
type Base struct {
	Entries map[string]AliasEntry `yaml:"aliases"`
}

// Aliases converts every entry of a Base into domain Alias values, in no
// particular order beyond Go map iteration (callers that need a stable
// order should sort the result by Name).
func (b Base) Aliases() ([]alias.Alias, error) {
	out := make([]alias.Alias, 0, len(b.Entries))
	for name, entry := range b.Entries {
		a, err := entry.toAlias(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Global is the user-wide config file's schema. It additionally names the
// directory llama.cpp model paths are resolved against when an alias's
// model_name is not already an absolute path ending in .gguf.
type Global struct {
	Base             `yaml:",inline"`
	LlamaCppModelDir string `yaml:"llamacpp_model_dir"`
}

// Project is the per-project config file's schema. It currently carries no
// fields beyond the shared alias map, but is kept as a distinct type since
// it is a separate source with its own conflict rules against Global.
type Project struct {
	Base `yaml:",inline"`
}

// LoadGlobal reads and parses the global config file at path. A missing
// file is not an error: it returns a zero-value Global, matching
// lazyllama's BaseConfig.load() returning None when the file is absent.
func LoadGlobal(path string) (Global, error) {
	var g Global
	ok, err := loadYAML(path, &g)
	if err != nil || !ok {
		return Global{}, err
	}
	return g, nil
}

// LoadProject reads and parses the project config file at path. A missing
// file is not an error, for the same reason as LoadGlobal.
func LoadProject(path string) (Project, error) {
	var p Project
	ok, err := loadYAML(path, &p)
	if err != nil || !ok {
		return Project{}, err
	}
	return p, nil
}

// loadYAML unmarshals the file at path into out. It returns ok=false (with
// a nil error) when the file does not exist.
func loadYAML(path string, out interface{}) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}
