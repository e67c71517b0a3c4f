// Package llamacpp implements the inference.Backend contract by launching
// llama.cpp's llama-server binary as a subprocess.
package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gguf_parser "github.com/gpustack/gguf-parser-go"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/inference"
	"github.com/modelmux/modelmux/pkg/inference/backends/command"
	"github.com/modelmux/modelmux/pkg/logging"
)

// ErrModelNotFound is returned when an alias's model_id cannot be resolved
// to an existing .gguf file, either because it names a non-existent
// absolute path or because no global model directory is configured.
var ErrModelNotFound = errors.New("model not found")

const binaryName = "llama-server"

// Backend drives a single llama-server process for one alias.
type Backend struct {
	alias    alias.Alias
	port     int
	modelDir string // global config's llamacpp_model_dir, may be empty
	log      logging.Logger
	proc     *command.Process
	client   *http.Client
}

// New constructs a llamacpp Backend for alias a listening on port. modelDir
// is the global configuration's llamacpp_model_dir, used to resolve a
// model_id that is not already an absolute .gguf path.
func New(a alias.Alias, port int, modelDir string, log logging.Logger) *Backend {
	return &Backend{
		alias:    a,
		port:     port,
		modelDir: modelDir,
		log:      log.WithField("backend", "llamacpp").WithField("alias", a.Name),
		proc:     &command.Process{},
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

// resolveModelPath mirrors lazyllama's LlamaCppServer._resolve_model_path:
// a model_id that is both an absolute path and already ends in .gguf is
// trusted as a literal path; anything else (including a relative .gguf
// name) is looked up under modelDir with a .gguf suffix appended.
func resolveModelPath(modelID, modelDir string) (string, error) {
	if strings.HasSuffix(modelID, ".gguf") && filepath.IsAbs(modelID) {
		return modelID, nil
	}

	if modelDir == "" {
		return "", fmt.Errorf("%w: model %q was aliased by name but no llamacpp_model_dir is configured", ErrModelNotFound, modelID)
	}

	name := modelID
	if !strings.HasSuffix(name, ".gguf") {
		name += ".gguf"
	}
	path := filepath.Join(modelDir, name)

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s does not exist", ErrModelNotFound, path)
	}
	return path, nil
}

// validateGGUF parses the resolved file's header to confirm it is a
// well-formed GGUF and warns (without failing) if the alias requests a
// context window larger than the model was trained with. Unlike
// resolveModelPath's existence check, a parse failure here also surfaces as
// ErrModelNotFound: a file that isn't a real GGUF is no more usable than one
// that doesn't exist.
func validateGGUF(path string, nctx int, log logging.Logger) error {
	f, err := gguf_parser.ParseGGUFFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s is not a valid GGUF file: %v", ErrModelNotFound, path, err)
	}

	arch, found := f.Header.MetadataKV.Get("general.architecture")
	if !found {
		return nil
	}
	trainedCtx, found := f.Header.MetadataKV.Get(arch.ValueString() + ".context_length")
	if !found {
		return nil
	}
	if trained := int(trainedCtx.ValueUint32()); trained > 0 && nctx > trained {
		log.Warnf("alias requests n_ctx=%d but model's trained context length is %d", nctx, trained)
	}
	return nil
}

// buildArgs constructs the llama-server argument list: --model, --ctx-size,
// --port, then the alias's command params verbatim, matching
// build_command's argument order.
func buildArgs(modelPath string, a alias.Alias, port int) []string {
	args := []string{
		"--model", modelPath,
		"--ctx-size", strconv.Itoa(a.NCtx),
		"--port", strconv.Itoa(port),
	}
	return append(args, a.CommandParams...)
}

func (b *Backend) Start(ctx context.Context) error {
	path, err := resolveModelPath(b.alias.Model.ModelID, b.modelDir)
	if err != nil {
		return err
	}
	if err := validateGGUF(path, b.alias.NCtx, b.log); err != nil {
		return err
	}

	args := buildArgs(path, b.alias, b.port)
	b.log.WithField("args", args).Debug("starting llama-server")
	return b.proc.Start(ctx, binaryName, args)
}

func (b *Backend) Stop(ctx context.Context) error {
	return b.proc.Stop()
}

func (b *Backend) CheckRunning(ctx context.Context) (bool, error) {
	return b.proc.Running(), nil
}

func (b *Backend) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	return inference.WaitUntilReadyHTTP(ctx, b.client, fmt.Sprintf("http://localhost:%d/models", b.port), timeout)
}

func (b *Backend) Port() int { return b.port }

var _ inference.Backend = (*Backend)(nil)
