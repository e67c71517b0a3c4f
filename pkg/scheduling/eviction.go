package scheduling

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInfeasibleRequest is returned by the manager when the host can't fit
// the request: either no set of running servers covers the deficit (the
// error then also wraps ErrEvictionImpossible), or, even after evicting
// every candidate selectForEviction chose, the host still comes up short.
// In the second case already-evicted servers stay down even though the
// request itself is refused.
var ErrInfeasibleRequest = errors.New("no combination of servers can satisfy resource requirements")

// ErrEvictionImpossible is returned by selectForEviction itself: either
// there were no running candidates at all, or accumulating every
// candidate's predicted usage still doesn't cover both deficits.
var ErrEvictionImpossible = errors.New("no servers can be evicted to satisfy resource requirements")

// evictionEpsilon is the floor substituted for a zero deficit so that
// w_i's denominator never divides by zero, matching lazyllama's 1e-6.
const evictionEpsilon = 1e-6

// evictionCandidate is one running server scored for eviction.
type evictionCandidate struct {
	server *Server
	ramMB  float64
	vramMB float64
	weight float64
}

// selectForEviction picks the smallest prefix — by descending weight — of
// running candidates whose combined predicted usage covers both deficits.
// Weight is w_i = max(R_i/max(ramDeficit,eps), V_i/max(vramDeficit,eps));
// picking by weight preferentially evicts whichever single server relieves
// the tighter of the two deficits, biasing toward evicting fewer, heavier
// servers over many light ones. Ties keep candidates' original (insertion)
// order, since sort.SliceStable preserves it.
//
// Only status==Running servers are eligible: a server that is starting or
// stopping is not a safe eviction target (lazyllama's evict_servers filters
// on the same status check).
func selectForEviction(candidates []evictionCandidate, ramDeficit, vramDeficit float64) ([]*Server, error) {
	if len(candidates) == 0 {
		return nil, ErrEvictionImpossible
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].weight > candidates[j].weight
	})

	var selected []*Server
	var ramTotal, vramTotal float64
	for _, c := range candidates {
		selected = append(selected, c.server)
		ramTotal += c.ramMB
		vramTotal += c.vramMB
		if ramTotal >= ramDeficit && vramTotal >= vramDeficit {
			return selected, nil
		}
	}

	return nil, fmt.Errorf("%w: evicting every running server would free R=%.1f V=%.1f, needed R=%.1f V=%.1f",
		ErrEvictionImpossible, ramTotal, vramTotal, ramDeficit, vramDeficit)
}

func evictionWeight(ramMB, vramMB, ramDeficit, vramDeficit float64) float64 {
	r := ramMB / max(ramDeficit, evictionEpsilon)
	v := vramMB / max(vramDeficit, evictionEpsilon)
	if r > v {
		return r
	}
	return v
}
