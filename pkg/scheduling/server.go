// Package scheduling implements the admission and eviction policy that
// turns a stream of alias requests into a bounded set of running backend
// processes: reuse a compatible running server if one exists, otherwise
// measure what a new one would cost, evict the running servers that free
// the largest share of the shortfall if the host doesn't have room, and
// refuse the request if even that isn't enough.
package scheduling

import (
	"slices"

	"github.com/google/uuid"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/inference"
)

// Server is one tracked backend process: the alias it was started for, the
// port it listens on, and the lifecycle Handle driving its process. It is
// the Go analogue of lazyllama's BaseServer subclasses, minus the
// subclassing — the concrete backend behavior lives behind
// inference.Backend and Server only tracks bookkeeping the manager needs.
type Server struct {
	// ID uniquely identifies this server instance across its lifetime, so
	// that two servers started for the same alias (one evicted, one
	// replacing it) are never confused with each other.
	ID uuid.UUID
	// Alias is the alias this server was started to satisfy.
	Alias alias.Alias
	// Port is the TCP port the backend listens on.
	Port int
	// handle drives the backend process through its lifecycle states.
	handle *inference.Handle
}

// newServer wraps backend in a Server tracked under a fresh ID for alias a
// on port.
func newServer(a alias.Alias, port int, backend inference.Backend) *Server {
	return &Server{
		ID:     uuid.New(),
		Alias:  a,
		Port:   port,
		handle: inference.NewHandle(backend),
	}
}

// Status reports the server's current lifecycle state.
func (s *Server) Status() inference.Status {
	return s.handle.Status
}

// IsCompatible reports whether this server, already running alias s.Alias,
// can satisfy a request for alias `request` instead of starting a new
// server: same model and backend, identical command params, and a context
// window at least as large as requested. Grounded on lazyllama's
// ServerManager.is_compatible.
func (s *Server) IsCompatible(request alias.Alias) bool {
	return s.Alias.Model.Equal(request.Model) &&
		slices.Equal(s.Alias.CommandParams, request.CommandParams) &&
		request.NCtx <= s.Alias.NCtx
}
