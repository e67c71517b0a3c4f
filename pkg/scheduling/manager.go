package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/inference"
	"github.com/modelmux/modelmux/pkg/logging"
	"github.com/modelmux/modelmux/pkg/metrics"
	"github.com/modelmux/modelmux/pkg/portalloc"
	"github.com/modelmux/modelmux/pkg/resourcemodel"
)

// BackendFactory instantiates the concrete inference.Backend for alias a,
// bound to port. One is registered per alias.BackendKind; the manager holds
// no knowledge of llamacpp/ollama specifics beyond this indirection.
type BackendFactory func(a alias.Alias, port int) (inference.Backend, error)

// Manager is the admission and eviction scheduler: the Go analogue of
// lazyllama's ServerManager. Every admission holds mu for its full
// duration, which is the direct translation of spec.md's "single-threaded
// cooperative" concurrency model into a language without async/await — a
// second caller's GetOrStartServer blocks until the first completes rather
// than interleaving with it, so every invariant that must hold "between
// suspension points" holds for the whole call instead.
type Manager struct {
	mu sync.Mutex

	log        logging.Logger
	cache      *resourcemodel.Cache
	measurer   resourcemodel.Measurer
	factories  map[alias.BackendKind]BackendFactory
	totalRAMMB float64
	totalVRAM  float64
	metrics    *metrics.Scheduler

	running []*Server
}

// ManagerOption configures optional Manager behavior beyond its required
// constructor arguments.
type ManagerOption func(*Manager)

// WithMetrics attaches a metrics.Scheduler that GetOrStartServer updates on
// every admission, reuse, eviction, and refusal. Omitting it leaves
// metrics collection disabled.
func WithMetrics(s *metrics.Scheduler) ManagerOption {
	return func(m *Manager) { m.metrics = s }
}

// NewManager constructs a Manager with the given total resource budget. The
// caller supplies factories for every alias.BackendKind it wants to admit;
// an admission for an unregistered backend kind fails immediately.
func NewManager(
	log logging.Logger,
	cache *resourcemodel.Cache,
	measurer resourcemodel.Measurer,
	factories map[alias.BackendKind]BackendFactory,
	totalRAMMB, totalVRAMMB float64,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		log:        log,
		cache:      cache,
		measurer:   measurer,
		factories:  factories,
		totalRAMMB: totalRAMMB,
		totalVRAM:  totalVRAMMB,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrStartServer implements spec.md §4.5's six-step admission algorithm:
// reuse a compatible running server if one exists; otherwise predict the
// request's footprint, account for what's already running, evict if the
// budget is short, refuse if eviction still isn't enough, and finally spawn.
//
// ctx is passed to every blocking step. Servers already stopped by eviction
// stay stopped if the admission is then refused or ctx is cancelled; they
// are not restarted.
func (m *Manager) GetOrStartServer(ctx context.Context, a alias.Alias) (*Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log.WithField("alias", a.Name)
	if m.metrics != nil {
		m.metrics.Admissions.WithLabelValues(a.Name).Inc()
	}

	// Step 1: reuse.
	if s := m.findReusable(ctx, a); s != nil {
		log.WithField("server", s.ID).Debug("reusing compatible running server")
		if m.metrics != nil {
			m.metrics.Reuses.WithLabelValues(a.Name).Inc()
		}
		return s, nil
	}

	// Step 2: predict.
	model, err := m.cache.GetOrMeasure(ctx, a, m.measurer)
	if err != nil {
		return nil, fmt.Errorf("predicting resource usage for alias %q: %w", a.Name, err)
	}
	ramNeed, vramNeed := model.Predict(a.NCtx)

	// Step 3: account.
	ramUsed, vramUsed := m.currentUsage()
	ramFree := m.totalRAMMB - ramUsed
	vramFree := m.totalVRAM - vramUsed

	// Step 4: evict if insufficient.
	if ramFree < ramNeed || vramFree < vramNeed {
		if err := m.evictToFit(ctx, ramNeed-ramFree, vramNeed-vramFree, log); err != nil {
			if m.metrics != nil {
				m.metrics.InfeasibleTotal.Inc()
			}
			return nil, fmt.Errorf("%w: alias %q: %w", ErrInfeasibleRequest, a.Name, err)
		}
		ramUsed, vramUsed = m.currentUsage()
		ramFree = m.totalRAMMB - ramUsed
		vramFree = m.totalVRAM - vramUsed
	}

	// Step 5: refuse if still insufficient.
	if ramFree < ramNeed || vramFree < vramNeed {
		log.WithField("ram_need", ramNeed).WithField("vram_need", vramNeed).
			WithField("ram_free", ramFree).WithField("vram_free", vramFree).
			Warn("admission refused after eviction: still insufficient")
		if m.metrics != nil {
			m.metrics.InfeasibleTotal.Inc()
		}
		return nil, fmt.Errorf("%w: alias %q needs R=%.1f V=%.1f, only R=%.1f V=%.1f free",
			ErrInfeasibleRequest, a.Name, ramNeed, vramNeed, ramFree, vramFree)
	}

	// Step 6: spawn.
	server, err := m.spawn(ctx, a, log)
	if err == nil {
		m.updateUsageGauges()
	}
	return server, err
}

// updateUsageGauges refreshes the predicted-usage gauges from the current
// running set. Called after any change to membership (spawn, eviction).
func (m *Manager) updateUsageGauges() {
	if m.metrics == nil {
		return
	}
	ramMB, vramMB := m.currentUsage()
	m.metrics.PredictedRAMMB.Set(ramMB)
	m.metrics.PredictedVRAMMB.Set(vramMB)
}

// findReusable scans the running set for the first live, compatible server.
func (m *Manager) findReusable(ctx context.Context, a alias.Alias) *Server {
	for _, s := range m.running {
		running, err := s.handle.Backend.CheckRunning(ctx)
		if err != nil || !running {
			continue
		}
		if s.IsCompatible(a) {
			return s
		}
	}
	return nil
}

// currentUsage sums predicted RAM/VRAM over every tracked server regardless
// of status (starting/running/stopping all still hold the resource; only a
// fully stopped server, which is removed from m.running, does not).
func (m *Manager) currentUsage() (ramMB, vramMB float64) {
	for _, s := range m.running {
		model, ok := m.cache.Peek(s.Alias)
		if !ok {
			continue
		}
		r, v := model.Predict(s.Alias.NCtx)
		ramMB += r
		vramMB += v
	}
	return ramMB, vramMB
}

// PredictedUsage returns the predicted RAM/VRAM footprint for the server's
// alias and n_ctx, the same figures accounting and eviction scoring use —
// exposed so operator tooling (the CLI's ps table) can show, per server,
// what its admission is actually budgeted against.
func (m *Manager) PredictedUsage(s *Server) (ramMB, vramMB float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	model, ok := m.cache.Peek(s.Alias)
	if !ok {
		return 0, 0
	}
	return model.Predict(s.Alias.NCtx)
}

// evictToFit selects and stops running servers until ramDeficit and
// vramDeficit are both covered, removing each from the running set once its
// stop has returned (a stop error is logged and the server is removed anyway).
func (m *Manager) evictToFit(ctx context.Context, ramDeficit, vramDeficit float64, log logging.Logger) error {
	var candidates []evictionCandidate
	for _, s := range m.running {
		if s.Status() != inference.Running {
			continue
		}
		model, ok := m.cache.Peek(s.Alias)
		if !ok {
			continue
		}
		r, v := model.Predict(s.Alias.NCtx)
		candidates = append(candidates, evictionCandidate{
			server: s,
			ramMB:  r,
			vramMB: v,
			weight: evictionWeight(r, v, ramDeficit, vramDeficit),
		})
	}

	selected, err := selectForEviction(candidates, ramDeficit, vramDeficit)
	if err != nil {
		return err
	}

	for _, s := range selected {
		log.WithField("server", s.ID).WithField("evicted_alias", s.Alias.Name).Info("evicting server")
		if err := s.handle.StopAndWait(ctx); err != nil {
			log.WithField("server", s.ID).WithError(err).Warn("error stopping evicted server")
		}
		m.remove(s)
		if m.metrics != nil {
			m.metrics.Evictions.WithLabelValues(s.Alias.Name).Inc()
		}
	}
	return nil
}

func (m *Manager) remove(target *Server) {
	for i, s := range m.running {
		if s == target {
			m.running = append(m.running[:i], m.running[i+1:]...)
			return
		}
	}
}

// spawn allocates a port, instantiates the backend for a's kind, and drives
// it through start_and_wait before appending it to the running set.
func (m *Manager) spawn(ctx context.Context, a alias.Alias, log logging.Logger) (*Server, error) {
	factory, ok := m.factories[a.Model.Backend]
	if !ok {
		return nil, fmt.Errorf("no backend factory registered for %q", a.Model.Backend)
	}

	tracked := make(map[int]bool, len(m.running))
	for _, s := range m.running {
		tracked[s.Port] = true
	}
	port, err := portalloc.Allocate(a.Model.Backend, tracked)
	if err != nil {
		return nil, fmt.Errorf("allocating port for alias %q: %w", a.Name, err)
	}

	backend, err := factory(a, port)
	if err != nil {
		return nil, fmt.Errorf("creating backend for alias %q: %w", a.Name, err)
	}

	server := newServer(a, port, backend)
	if err := server.handle.StartAndWait(ctx, inference.DefaultReadyTimeout); err != nil {
		return nil, fmt.Errorf("starting server for alias %q: %w", a.Name, err)
	}

	m.running = append(m.running, server)
	log.WithField("server", server.ID).WithField("port", port).Info("spawned new server")
	return server, nil
}

// Evict stops and removes the running server for name if one exists,
// supporting the CLI's manual `modelmux evict` operation. It drives the
// same stop_and_wait path admission-triggered eviction does.
func (m *Manager) Evict(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.running {
		if s.Alias.Name == name {
			if err := s.handle.StopAndWait(ctx); err != nil {
				return fmt.Errorf("stopping server for alias %q: %w", name, err)
			}
			m.remove(s)
			m.updateUsageGauges()
			return nil
		}
	}
	return fmt.Errorf("alias %q has no running server", name)
}

// Servers returns a snapshot of the currently-tracked running set.
func (m *Manager) Servers() []*Server {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Server, len(m.running))
	copy(out, m.running)
	return out
}

// Shutdown stops every tracked server, best-effort, used when the daemon
// itself is terminating. Errors from individual servers are collected, not
// short-circuited, so one stuck backend doesn't prevent stopping the rest.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.running {
		if err := s.handle.StopAndWait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("alias %q: %w", s.Alias.Name, err))
		}
	}
	m.running = nil
	return errors.Join(errs...)
}

// DefaultShutdownTimeout bounds how long Shutdown's caller should give it
// before giving up on a graceful stop of every backend.
const DefaultShutdownTimeout = 30 * time.Second
