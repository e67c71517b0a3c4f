package scheduling

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mattn/go-shellwords"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/inference"
	"github.com/modelmux/modelmux/pkg/internal/utils"
	"github.com/modelmux/modelmux/pkg/logging"
)

// ErrAliasNotFound names the unknown-alias condition. The handlers in this
// file do not return it: an unknown alias reaches HTTP callers as the
// registry's alias.ErrNotFound message with status 404.
var ErrAliasNotFound = errors.New("alias not found")

const maximumRequestBodySize = 1 << 20 // 1 MiB; requests here carry no model payloads.

// HTTPHandler exposes the admission algorithm and the supplemental
// operator endpoints (ps, evict, alias override) over HTTP, wrapping the
// route-map-over-ServeMux shape the teacher's own scheduling.HTTPHandler
// uses.
type HTTPHandler struct {
	registry *alias.Registry
	manager  *Manager
	log      logging.Logger
	router   *http.ServeMux
}

// NewHTTPHandler builds the HTTP surface over registry and manager. log may
// be nil, in which case request-level logging is disabled.
func NewHTTPHandler(registry *alias.Registry, manager *Manager, log logging.Logger) *HTTPHandler {
	h := &HTTPHandler{registry: registry, manager: manager, log: log, router: http.NewServeMux()}

	h.router.HandleFunc("POST /v1/admit/{name}", h.handleAdmit)
	h.router.HandleFunc("GET /v1/ps", h.handlePS)
	h.router.HandleFunc("POST /v1/evict/{name}", h.handleEvict)
	h.router.HandleFunc("POST /v1/aliases/{name}/override", h.handleOverride)

	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// admitResponse is the downstream contract spec.md §6 names: at minimum a
// port, from which the client constructs its own proxied requests.
type admitResponse struct {
	ServerID string `json:"server_id"`
	Port     int    `json:"port"`
}

// handleAdmit handles POST /v1/admit/{name}: resolve the alias, run the
// admission algorithm, and report the resulting server's port.
func (h *HTTPHandler) handleAdmit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	a, err := h.registry.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	server, err := h.manager.GetOrStartServer(r.Context(), a)
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(admitResponse{ServerID: server.ID.String(), Port: server.Port})
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInfeasibleRequest), errors.Is(err, ErrEvictionImpossible):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// psEntry is one row of the ps/status table, mirroring the fields the CLI's
// `modelmux ps` renders with docker/go-units formatting.
type psEntry struct {
	ServerID string  `json:"server_id"`
	Alias    string  `json:"alias"`
	Port     int     `json:"port"`
	Status   string  `json:"status"`
	RAMMB    float64 `json:"ram_mb"`
	VRAMMB   float64 `json:"vram_mb"`
}

// handlePS handles GET /v1/ps: a snapshot of every tracked server.
func (h *HTTPHandler) handlePS(w http.ResponseWriter, _ *http.Request) {
	servers := h.manager.Servers()
	entries := make([]psEntry, 0, len(servers))
	for _, s := range servers {
		ramMB, vramMB := h.manager.PredictedUsage(s)
		entries = append(entries, psEntry{
			ServerID: s.ID.String(),
			Alias:    s.Alias.Name,
			Port:     s.Port,
			Status:   string(s.Status()),
			RAMMB:    ramMB,
			VRAMMB:   vramMB,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// handleEvict handles POST /v1/evict/{name}: the manual operator analogue
// of spec.md §4.6's automatic eviction, driving the same stop_and_wait path.
func (h *HTTPHandler) handleEvict(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.manager.Evict(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// overrideRequest accepts either a structured command_params array or a
// single shell-quoted raw string, mirroring the teacher's
// Scheduler.ConfigureRunner handling of RuntimeFlags vs. RawRuntimeFlags.
type overrideRequest struct {
	ModelName        string   `json:"model_name"`
	Backend          string   `json:"backend"`
	NCtx             int      `json:"n_ctx"`
	CommandParams    []string `json:"command_params"`
	RawCommandParams string   `json:"raw_command_params"`
}

// handleOverride handles POST /v1/aliases/{name}/override: updates the
// registry entry used by *future* admissions. It never touches an already
// -running server — an overridden alias is simply a new Alias value that
// may or may not be compatible with whatever is currently running.
func (h *HTTPHandler) handleOverride(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maximumRequestBodySize))
	if err != nil {
		http.Error(w, "request too large or unreadable", http.StatusBadRequest)
		return
	}

	var req overrideRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	params := req.CommandParams
	if len(params) == 0 && req.RawCommandParams != "" {
		params, err = shellwords.Parse(req.RawCommandParams)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid raw_command_params: %v", err), http.StatusBadRequest)
			return
		}
	}

	if err := inference.ValidateCommandParams(params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	backend, err := parseBackendKind(req.Backend)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	nctx := req.NCtx
	if nctx == 0 {
		nctx = alias.DefaultContextSize
	}

	if h.log != nil {
		// name and req.ModelName come straight off the wire; sanitize before
		// logging so a caller can't forge fake log lines via embedded
		// newlines or control characters.
		h.log.WithField("alias", utils.SanitizeForLog(name)).
			WithField("model_name", utils.SanitizeForLog(req.ModelName)).
			Info("alias override applied")
	}

	h.registry.Set(alias.Alias{
		Name:          name,
		Model:         alias.Model{ModelID: req.ModelName, Backend: backend},
		NCtx:          nctx,
		CommandParams: params,
	})
	w.WriteHeader(http.StatusAccepted)
}

func parseBackendKind(s string) (alias.BackendKind, error) {
	switch alias.BackendKind(s) {
	case alias.LlamaCpp, alias.Ollama:
		return alias.BackendKind(s), nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}
