package scheduling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/inference"
)

func newRunningServer(t *testing.T, a alias.Alias) *Server {
	t.Helper()
	s := newServer(a, 9000, nil)
	s.handle.Status = inference.Running
	return s
}

func TestIsCompatible_SameModelSmallerNCtxReuses(t *testing.T) {
	running := alias.Alias{
		Name:  "mistral",
		Model: alias.Model{ModelID: "mistral.gguf", Backend: alias.LlamaCpp},
		NCtx:  4096,
	}
	s := newRunningServer(t, running)

	request := running
	request.NCtx = 2048
	require.True(t, s.IsCompatible(request))
}

func TestIsCompatible_LargerNCtxDoesNotReuse(t *testing.T) {
	running := alias.Alias{
		Name:  "mistral",
		Model: alias.Model{ModelID: "mistral.gguf", Backend: alias.LlamaCpp},
		NCtx:  2048,
	}
	s := newRunningServer(t, running)

	request := running
	request.NCtx = 4096
	require.False(t, s.IsCompatible(request))
}

func TestIsCompatible_DifferentCommandParamsDoesNotReuse(t *testing.T) {
	running := alias.Alias{
		Name:          "mistral",
		Model:         alias.Model{ModelID: "mistral.gguf", Backend: alias.LlamaCpp},
		NCtx:          2048,
		CommandParams: []string{"--flash-attn"},
	}
	s := newRunningServer(t, running)

	request := running
	request.CommandParams = nil
	require.False(t, s.IsCompatible(request))
}

func TestIsCompatible_DifferentModelDoesNotReuse(t *testing.T) {
	running := alias.Alias{
		Name:  "mistral",
		Model: alias.Model{ModelID: "mistral.gguf", Backend: alias.LlamaCpp},
		NCtx:  2048,
	}
	s := newRunningServer(t, running)

	request := running
	request.Model.ModelID = "other.gguf"
	require.False(t, s.IsCompatible(request))
}

func TestNewServer_StartsStopped(t *testing.T) {
	s := newServer(alias.Alias{Name: "x"}, 9000, nil)
	require.Equal(t, inference.Stopped, s.Status())
}
