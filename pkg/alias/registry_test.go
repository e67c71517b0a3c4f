package alias_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/alias"
)

func mistral(nctx int) alias.Alias {
	return alias.Alias{
		Name: "mistral",
		Model: alias.Model{
			ModelID: "/models/mistral.gguf",
			Backend: alias.LlamaCpp,
		},
		NCtx:          nctx,
		CommandParams: []string{"--flash-attn"},
	}
}

func TestRegistry_AddThenGet(t *testing.T) {
	r := alias.NewRegistry()

	require.NoError(t, r.Add(mistral(4096)))

	got, err := r.Get("mistral")
	require.NoError(t, err)
	if diff := cmp.Diff(mistral(4096), got); diff != "" {
		t.Fatalf("Get returned unexpected alias (-want +got):\n%s", diff)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := alias.NewRegistry()

	_, err := r.Get("nope")
	require.Error(t, err)
	require.True(t, errors.Is(err, alias.ErrNotFound))
}

func TestRegistry_AddIdenticalTwiceIsNoop(t *testing.T) {
	r := alias.NewRegistry()

	require.NoError(t, r.Add(mistral(4096)))
	require.NoError(t, r.Add(mistral(4096)))

	got, err := r.Get("mistral")
	require.NoError(t, err)
	require.Equal(t, 4096, got.NCtx)
}

func TestRegistry_AddConflictingRejected(t *testing.T) {
	r := alias.NewRegistry()

	require.NoError(t, r.Add(mistral(4096)))

	err := r.Add(mistral(8192))
	require.Error(t, err)

	var conflict *alias.DuplicateAliasConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, "mistral", conflict.Name)
	require.Equal(t, 4096, conflict.Existing.NCtx)
	require.Equal(t, 8192, conflict.New.NCtx)

	// the registry must still hold the original definition
	got, err := r.Get("mistral")
	require.NoError(t, err)
	require.Equal(t, 4096, got.NCtx)
}

func TestRegistry_Set_OverridesUnconditionally(t *testing.T) {
	r := alias.NewRegistry()

	require.NoError(t, r.Add(mistral(4096)))
	r.Set(mistral(8192))

	got, err := r.Get("mistral")
	require.NoError(t, err)
	require.Equal(t, 8192, got.NCtx)
}

func TestRegistry_LoadAll_ProjectAgreesWithGlobal(t *testing.T) {
	r := alias.NewRegistry()

	global := []alias.Alias{mistral(4096)}
	project := []alias.Alias{mistral(4096)}

	require.NoError(t, r.LoadAll(global, project))

	got, err := r.Get("mistral")
	require.NoError(t, err)
	require.Equal(t, 4096, got.NCtx)
}

func TestRegistry_LoadAll_ProjectConflictsWithGlobal(t *testing.T) {
	r := alias.NewRegistry()

	global := []alias.Alias{mistral(4096)}
	project := []alias.Alias{mistral(8192)}

	err := r.LoadAll(global, project)
	require.Error(t, err)

	var conflict *alias.DuplicateAliasConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestRegistry_List(t *testing.T) {
	r := alias.NewRegistry()
	require.NoError(t, r.Add(mistral(4096)))

	llama := mistral(4096)
	llama.Name = "llama3"
	require.NoError(t, r.Add(llama))

	list := r.List()
	require.Len(t, list, 2)
}
