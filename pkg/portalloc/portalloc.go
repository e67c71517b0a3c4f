// Package portalloc allocates TCP ports for newly-started backend
// processes, scanning a per-backend range and confirming each candidate is
// actually bindable before handing it out.
package portalloc

import (
	"errors"
	"fmt"
	"net"

	"github.com/modelmux/modelmux/pkg/alias"
)

// ErrNoFreePort is returned when no port in a backend's scan range is both
// untracked and bindable.
var ErrNoFreePort = errors.New("no free port available")

// basePort is the first port tried for each backend family, matching
// lazyllama's DEFAULT_PORTS.
var basePort = map[alias.BackendKind]int{
	alias.LlamaCpp: 8000,
	alias.Ollama:   11434,
}

// MaxTries is how many candidate ports are scanned from a backend's base
// port before giving up, matching lazyllama's get_free_port default.
const MaxTries = 100

// Allocate returns a port for backend that is not in tracked and that can
// currently be bound on localhost. The bind-probe closes the listener
// immediately, so there's an inherent TOCTOU gap between this call and the
// caller actually binding it (the same gap lazyllama's socket-bind probe
// has) — callers that lose the race simply fail to start and can retry.
func Allocate(backend alias.BackendKind, tracked map[int]bool) (int, error) {
	base, ok := basePort[backend]
	if !ok {
		return 0, fmt.Errorf("no base port configured for backend %q", backend)
	}

	for offset := 0; offset < MaxTries; offset++ {
		port := base + offset
		if tracked[port] {
			continue
		}
		if probeBind(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: backend %q, tried ports %d-%d", ErrNoFreePort, backend, base, base+MaxTries-1)
}

// probeBind reports whether port can be bound on localhost right now.
func probeBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
