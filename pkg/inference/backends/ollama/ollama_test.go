package ollama

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/logging"
)

func testAlias() alias.Alias {
	return alias.Alias{
		Name:  "chat",
		Model: alias.Model{ModelID: "llama3:8b", Backend: alias.Ollama},
		NCtx:  8192,
	}
}

func discardLogger() logging.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logging.NewLogrusAdapter(l)
}

func TestNew_CreatesModelfileDir(t *testing.T) {
	b, err := New(testAlias(), 11500, discardLogger())
	require.NoError(t, err)
	defer os.RemoveAll(b.modelfileDir)

	info, err := os.Stat(b.modelfileDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestGenerateModelfile(t *testing.T) {
	b, err := New(testAlias(), 11500, discardLogger())
	require.NoError(t, err)
	defer os.RemoveAll(b.modelfileDir)

	require.NoError(t, b.generateModelfile())

	content, err := os.ReadFile(b.modelfilePath())
	require.NoError(t, err)
	require.Equal(t, "FROM llama3:8b\nPARAMETER n_ctx 8192\n", string(content))
}

func TestTagIncludesPortAndContextSize(t *testing.T) {
	b, err := New(testAlias(), 11500, discardLogger())
	require.NoError(t, err)
	defer os.RemoveAll(b.modelfileDir)

	require.Equal(t, "llama3:8b-ctx8192-11500", b.tag)
}

func TestStop_RemovesModelfileDir(t *testing.T) {
	b, err := New(testAlias(), 11500, discardLogger())
	require.NoError(t, err)

	require.NoError(t, b.Stop(context.Background()))

	_, err = os.Stat(b.modelfileDir)
	require.True(t, os.IsNotExist(err))
}
