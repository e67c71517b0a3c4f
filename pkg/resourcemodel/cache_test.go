package resourcemodel_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/logging"
	"github.com/modelmux/modelmux/pkg/resourcemodel"
)

func discardLogger() logging.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logging.NewLogrusAdapter(l)
}

func testAlias() alias.Alias {
	return alias.Alias{
		Name:  "mistral",
		Model: alias.Model{ModelID: "mistral.gguf", Backend: alias.LlamaCpp},
		NCtx:  4096,
	}
}

type Model = resourcemodel.Model

type fakeMeasurer struct {
	model Model
	calls int
}

func (f *fakeMeasurer) Measure(ctx context.Context, a alias.Alias) (Model, error) {
	f.calls++
	return f.model, nil
}

func TestCache_MeasuresOnceThenReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c := resourcemodel.NewCache(path, discardLogger())
	measurer := &fakeMeasurer{model: Model{R0: 1000, R1: 0.1, V0: 2000, V1: 0.2}}

	m1, err := c.GetOrMeasure(context.Background(), testAlias(), measurer)
	require.NoError(t, err)
	require.Equal(t, measurer.model, m1)
	require.Equal(t, 1, measurer.calls)

	m2, err := c.GetOrMeasure(context.Background(), testAlias(), measurer)
	require.NoError(t, err)
	require.Equal(t, measurer.model, m2)
	require.Equal(t, 1, measurer.calls, "second call must reuse the cached model, not measure again")
}

func TestCache_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	measurer := &fakeMeasurer{model: Model{R0: 1000, R1: 0.1, V0: 2000, V1: 0.2}}

	c1 := resourcemodel.NewCache(path, discardLogger())
	_, err := c1.GetOrMeasure(context.Background(), testAlias(), measurer)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "cache file should have been written")

	c2 := resourcemodel.NewCache(path, discardLogger())
	m, err := c2.GetOrMeasure(context.Background(), testAlias(), measurer)
	require.NoError(t, err)
	require.Equal(t, measurer.model, m)
	require.Equal(t, 1, measurer.calls, "the second Cache instance must load from disk, not re-measure")
}

func TestCache_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	c := resourcemodel.NewCache(path, discardLogger())
	measurer := &fakeMeasurer{model: Model{R0: 1, R1: 1, V0: 1, V1: 1}}

	_, err := c.GetOrMeasure(context.Background(), testAlias(), measurer)
	require.NoError(t, err)
}

func TestCache_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	c := resourcemodel.NewCache(path, discardLogger())
	measurer := &fakeMeasurer{model: Model{R0: 1, R1: 1, V0: 1, V1: 1}}

	_, err := c.GetOrMeasure(context.Background(), testAlias(), measurer)
	require.NoError(t, err)
	require.Equal(t, 1, measurer.calls)
}

func TestModel_Predict(t *testing.T) {
	m := Model{R0: 1000, R1: 0.5, V0: 2000, V1: 1.0}
	ram, vram := m.Predict(4096)
	require.Equal(t, 1000+0.5*4096, ram)
	require.Equal(t, 2000+1.0*4096, vram)
}
