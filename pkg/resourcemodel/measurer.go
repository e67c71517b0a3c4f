package resourcemodel

import (
	"context"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/logging"
)

// ConservativeEstimate is the fixed resource model DefaultMeasurer returns:
// a generous flat allowance plus a per-token slope chosen to overestimate
// rather than underestimate, since the cost of a false "infeasible" is a
// rejected admission while the cost of a false "feasible" is an
// out-of-memory backend crash.
var ConservativeEstimate = Model{R0: 4096, R1: 0.5, V0: 4096, V1: 0.5}

// DefaultMeasurer is the Measurer used when no real measurement backend
// (one that actually launches the alias at a couple of context sizes and
// observes RSS/VRAM) is configured. It always returns ConservativeEstimate,
// logged at Warn, rather than blocking forever the way an unimplemented
// measurer would — lazyllama's own measure_resource_model is an abstract
// method that raises NotImplementedError, which has no Go equivalent that
// still lets the manager make progress.
type DefaultMeasurer struct {
	Log logging.Logger
}

// Measure implements Measurer.
func (d DefaultMeasurer) Measure(ctx context.Context, a alias.Alias) (Model, error) {
	d.Log.WithField("alias", a.Name).Warn("no resource measurement backend configured; using a conservative fixed estimate")
	return ConservativeEstimate, nil
}
