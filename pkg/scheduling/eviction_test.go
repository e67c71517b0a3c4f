package scheduling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/alias"
)

func candidate(name string, ram, vram, weight float64) evictionCandidate {
	return evictionCandidate{server: &Server{Alias: alias.Alias{Name: name}}, ramMB: ram, vramMB: vram, weight: weight}
}

func TestSelectForEviction_StopsAsSoonAsBothDeficitsMet(t *testing.T) {
	candidates := []evictionCandidate{
		candidate("a", 100, 50, evictionWeight(100, 50, 150, 40)),
		candidate("b", 200, 100, evictionWeight(200, 100, 150, 40)),
	}

	selected, err := selectForEviction(candidates, 150, 40)
	require.NoError(t, err)
	require.Len(t, selected, 1, "the single heaviest candidate already covers both deficits")
	require.Equal(t, "b", selected[0].Alias.Name)
}

func TestSelectForEviction_AccumulatesUntilCovered(t *testing.T) {
	candidates := []evictionCandidate{
		candidate("a", 50, 10, evictionWeight(50, 10, 200, 5)),
		candidate("b", 60, 10, evictionWeight(60, 10, 200, 5)),
		candidate("c", 100, 10, evictionWeight(100, 10, 200, 5)),
	}

	selected, err := selectForEviction(candidates, 200, 5)
	require.NoError(t, err)
	require.Len(t, selected, 3, "no prefix shorter than all three candidates covers a 200 RAM deficit")
}

func TestSelectForEviction_NoCandidatesIsImpossible(t *testing.T) {
	_, err := selectForEviction(nil, 100, 100)
	require.ErrorIs(t, err, ErrEvictionImpossible)
}

func TestSelectForEviction_ExhaustedWithoutCoverageIsImpossible(t *testing.T) {
	candidates := []evictionCandidate{
		candidate("a", 10, 10, evictionWeight(10, 10, 1000, 1000)),
	}
	_, err := selectForEviction(candidates, 1000, 1000)
	require.ErrorIs(t, err, ErrEvictionImpossible)
}

func TestSelectForEviction_TiesBrokenByInsertionOrder(t *testing.T) {
	candidates := []evictionCandidate{
		candidate("first", 50, 50, 1.0),
		candidate("second", 50, 50, 1.0),
	}

	selected, err := selectForEviction(candidates, 100, 100)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Equal(t, "first", selected[0].Alias.Name)
	require.Equal(t, "second", selected[1].Alias.Name)
}

func TestEvictionWeight_PicksTighterConstraint(t *testing.T) {
	// RAM deficit is large relative to need, VRAM deficit is tiny: the VRAM
	// ratio should dominate the weight.
	w := evictionWeight(10 /* ram */, 100 /* vram */, 1000 /* ramDeficit */, 50 /* vramDeficit */)
	require.InDelta(t, 2.0, w, 1e-9)
}

func TestEvictionWeight_ZeroDeficitUsesEpsilonFloor(t *testing.T) {
	w := evictionWeight(10, 0, 0, 0)
	require.Greater(t, w, 0.0)
}
