// Package ollama implements the inference.Backend contract by driving an
// Ollama daemon through its four-step startup protocol: spawn, wait for
// the API to come up, materialize a Modelfile and `ollama create` a
// context-sized variant of the base model, then warm it into memory with a
// throwaway chat completion.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/inference"
	"github.com/modelmux/modelmux/pkg/inference/backends/command"
	"github.com/modelmux/modelmux/pkg/logging"
)

// ApiReadinessTimeout bounds how long Start waits for the spawned daemon's
// /v1/status endpoint to answer, matching lazyllama's ~15s budget.
const ApiReadinessTimeout = 15 * time.Second

// WarmupTimeout bounds how long Start waits for the warm-up chat completion
// to succeed after `ollama create`, matching lazyllama's ~10s budget.
const WarmupTimeout = 10 * time.Second

// ErrApiReadinessTimeout is returned when the spawned Ollama daemon's
// /v1/status endpoint never answers within ApiReadinessTimeout.
var ErrApiReadinessTimeout = errors.New("ollama API did not become ready")

// ErrWarmupTimeout is returned when the warm-up chat completion never
// succeeds within WarmupTimeout.
var ErrWarmupTimeout = errors.New("model did not warm up in time")

const binaryName = "ollama"

// Backend drives a single `ollama serve` process plus a context-sized model
// variant created from it, for one alias.
type Backend struct {
	alias        alias.Alias
	port         int
	tag          string
	modelfileDir string
	log          logging.Logger
	proc         *command.Process
	client       *http.Client
}

// New constructs an ollama Backend for alias a listening on port. Each
// instance gets its own temporary directory for the generated Modelfile and
// its own derived model tag, so two concurrently-running servers for
// different ports never collide on either.
func New(a alias.Alias, port int, log logging.Logger) (*Backend, error) {
	dir, err := os.MkdirTemp("", "modelmux-ollama-*")
	if err != nil {
		return nil, fmt.Errorf("creating modelfile directory: %w", err)
	}

	return &Backend{
		alias:        a,
		port:         port,
		tag:          fmt.Sprintf("%s-ctx%d-%d", a.Model.ModelID, a.NCtx, port),
		modelfileDir: dir,
		log:          log.WithField("backend", "ollama").WithField("alias", a.Name),
		proc:         &command.Process{},
		client:       &http.Client{Timeout: 2 * time.Second},
	}, nil
}

func (b *Backend) modelfilePath() string {
	return filepath.Join(b.modelfileDir, "Modelfile")
}

// generateModelfile writes a Modelfile that derives from the alias's base
// model and overrides its context window, matching
// ollama_server.py._generate_modelfile.
func (b *Backend) generateModelfile() error {
	content := fmt.Sprintf("FROM %s\nPARAMETER n_ctx %d\n", b.alias.Model.ModelID, b.alias.NCtx)
	return os.WriteFile(b.modelfilePath(), []byte(content), 0o644)
}

func (b *Backend) Start(ctx context.Context) error {
	// Step 1: spawn `ollama serve` bound to our allocated port.
	if err := b.proc.Start(ctx, binaryName, []string{"serve"}, command.WithEnv("OLLAMA_HOST", fmt.Sprintf("localhost:%d", b.port))); err != nil {
		return fmt.Errorf("starting ollama serve: %w", err)
	}

	// Step 2: wait for the API to come up.
	if err := inference.WaitUntilReadyHTTP(ctx, b.client, fmt.Sprintf("http://localhost:%d/v1/status", b.port), ApiReadinessTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrApiReadinessTimeout, err)
	}

	// Step 3: materialize the Modelfile and create the tagged variant.
	if err := b.generateModelfile(); err != nil {
		return fmt.Errorf("writing Modelfile: %w", err)
	}
	create := &command.Process{}
	if err := create.Start(ctx, binaryName, []string{"create", b.tag, "-f", b.modelfilePath()}, command.WithEnv("OLLAMA_HOST", fmt.Sprintf("localhost:%d", b.port))); err != nil {
		return fmt.Errorf("running ollama create: %w", err)
	}
	if err := create.Wait(ctx); err != nil {
		return fmt.Errorf("ollama create failed: %w", err)
	}

	// Step 4: warm the model into memory with a throwaway completion.
	if err := b.warmUp(ctx); err != nil {
		return fmt.Errorf("warming up model: %w", err)
	}
	return nil
}

// warmUp repeatedly POSTs a non-streaming chat completion until one
// succeeds or WarmupTimeout elapses, matching
// ollama_server.py._load_model_via_dummy_request.
func (b *Backend) warmUp(ctx context.Context) error {
	payload, err := json.Marshal(map[string]any{
		"model":    b.tag,
		"messages": []map[string]string{{"role": "user", "content": "Hello"}},
		"stream":   false,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://localhost:%d/v1/chat/completions", b.port)

	deadline := time.Now().Add(WarmupTimeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			resp, err := b.client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %s", ErrWarmupTimeout, WarmupTimeout)
}

func (b *Backend) Stop(ctx context.Context) error {
	err := b.proc.Stop()
	_ = os.RemoveAll(b.modelfileDir)
	return err
}

func (b *Backend) CheckRunning(ctx context.Context) (bool, error) {
	return b.proc.Running(), nil
}

func (b *Backend) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	// Start already blocks until the model is fully warmed up; by the time
	// the server manager calls WaitUntilReady the backend is already live.
	return nil
}

func (b *Backend) Port() int { return b.port }

var _ inference.Backend = (*Backend)(nil)
