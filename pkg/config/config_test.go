package config_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/config"
)

const globalYAML = `
llamacpp_model_dir: /models
aliases:
  mistral:
    model_name: mistral.gguf
    backend: llamacpp
    n_ctx: 8192
    command_params:
      - "--flash-attn"
  chat:
    model_name: llama3:8b
    backend: ollama
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGlobal(t *testing.T) {
	path := writeFile(t, globalYAML)

	g, err := config.LoadGlobal(path)
	require.NoError(t, err)
	require.Equal(t, "/models", g.LlamaCppModelDir)

	aliases, err := g.Aliases()
	require.NoError(t, err)
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Name < aliases[j].Name })

	require.Len(t, aliases, 2)
	require.Equal(t, alias.Alias{
		Name:          "chat",
		Model:         alias.Model{ModelID: "llama3:8b", Backend: alias.Ollama},
		NCtx:          alias.DefaultContextSize,
		CommandParams: nil,
	}, aliases[0])
	require.Equal(t, alias.Alias{
		Name:          "mistral",
		Model:         alias.Model{ModelID: "mistral.gguf", Backend: alias.LlamaCpp},
		NCtx:          8192,
		CommandParams: []string{"--flash-attn"},
	}, aliases[1])
}

func TestLoadGlobal_MissingFileIsNotAnError(t *testing.T) {
	g, err := config.LoadGlobal(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	aliases, err := g.Aliases()
	require.NoError(t, err)
	require.Empty(t, aliases)
}

func TestLoadGlobal_UnknownBackendRejected(t *testing.T) {
	path := writeFile(t, `
aliases:
  bad:
    model_name: x
    backend: not-a-backend
`)
	g, err := config.LoadGlobal(path)
	require.NoError(t, err)

	_, err = g.Aliases()
	require.Error(t, err)
}

func TestLoadProject(t *testing.T) {
	path := writeFile(t, `
aliases:
  mistral:
    model_name: mistral.gguf
    backend: llamacpp
`)
	p, err := config.LoadProject(path)
	require.NoError(t, err)

	aliases, err := p.Aliases()
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	require.Equal(t, alias.DefaultContextSize, aliases[0].NCtx)
}
