// Package command provides a shared subprocess launcher used by every
// Backend variant that runs a command-line inference server: spawn the
// process in its own group, terminate it gracefully, and fall back to a
// hard kill of the whole group if it doesn't exit in time.
package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// GracefulStopTimeout is how long Process.Stop waits for the process to
// exit after SIGTERM before escalating to SIGKILL, matching lazyllama's
// command_server.py 5-second wait_for timeout.
const GracefulStopTimeout = 5 * time.Second

// Option customizes the exec.Cmd built by Start, e.g. to add environment
// variables.
type Option func(*exec.Cmd)

// WithEnv appends a KEY=VALUE pair to the launched process's environment,
// inheriting the rest from the current process (the same behavior
// os/exec gives a Cmd with a nil Env).
func WithEnv(key, value string) Option {
	return func(cmd *exec.Cmd) {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, key+"="+value)
	}
}

// Process wraps a single running (or not-yet-started) subprocess launched
// in its own process group, so that killing it also reaps any children it
// spawned (llama-server and ollama serve both fork helper processes).
type Process struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	pid     int
	exited  bool
	exitErr error
	waitCh  chan struct{}
}

// Start launches name with args, redirecting stdout/stderr to the null
// device the way lazyllama's CommandServer.start does (DEVNULL). It is a
// no-op if the process is already running, matching the original's
// idempotent start().
func (p *Process) Start(ctx context.Context, name string, args []string, opts ...Option) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && !p.exited {
		return nil
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	for _, opt := range opts {
		opt(cmd)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening null device: %w", err)
	}
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.exited = false
	p.exitErr = nil
	waitCh := make(chan struct{})
	p.waitCh = waitCh

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exited = true
		p.exitErr = err
		p.mu.Unlock()
		close(waitCh)
	}()

	return nil
}

// Stop sends SIGTERM to the process group and waits up to
// GracefulStopTimeout for the process to exit; if it hasn't, it sends
// SIGKILL to the group and waits for it to be reaped.
func (p *Process) Stop() error {
	p.mu.Lock()
	pid, waitCh, exited := p.pid, p.waitCh, p.exited
	p.mu.Unlock()

	if pid == 0 || exited {
		return nil
	}

	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		// the process has already exited and its pgid was reclaimed.
		return nil
	}

	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-waitCh:
	case <-time.After(GracefulStopTimeout):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-waitCh
	}
	return nil
}

// Wait blocks until the process launched by Start exits, or ctx is done,
// and returns the process's exit error, if any. It is meant for one-shot
// commands (e.g. `ollama create`) rather than long-running servers, which
// use Stop/StopAndWait instead.
func (p *Process) Wait(ctx context.Context) error {
	p.mu.Lock()
	waitCh, exited, exitErr := p.waitCh, p.exited, p.exitErr
	p.mu.Unlock()

	if waitCh == nil {
		return fmt.Errorf("process was never started")
	}
	if exited {
		return exitErr
	}

	select {
	case <-waitCh:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the process is still alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil && !p.exited
}

// PID returns the process's PID, or 0 if it has not been started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}
