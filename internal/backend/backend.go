// Package backend defines the capability interface the engine computes
// through, and binds a concrete implementation to a selected resource.
// Implementations operate on the flat buffers owned by the store; they never
// allocate or validate indices, which is the engine's job.
package backend

import (
	"fmt"

	"github.com/omsai/beagle-lib/internal/backend/cpu"
	"github.com/omsai/beagle-lib/internal/backend/vector"
	"github.com/omsai/beagle-lib/internal/resource"
	"github.com/omsai/beagle-lib/internal/store"
)

// Kernels is the compute capability an instance is bound to for its
// lifetime: transition matrix computation, the three peeling forms,
// rescaling and per-site aggregation.
type Kernels interface {
	Name() string

	// Close releases any execution resources the kernels hold, such as
	// worker goroutines. Called exactly once, at instance finalization.
	Close()

	// TransitionMatrices fills prob (and d1/d2 when non-nil) with one
	// states x states block per category, from the eigendecomposition at a
	// branch length scaled by each category's rate.
	TransitionMatrices(eig *store.Eigen, rates []float64, length float64, prob, d1, d2 []float64, states int)

	// PartialsPartials peels two partials-form children into dst.
	PartialsPartials(dst, p1, m1, p2, m2 []float64, patterns, states, cats int)

	// StatesPartials peels a compact-states child and a partials child.
	StatesPartials(dst []float64, s1 []int32, m1, p2, m2 []float64, patterns, states, cats int)

	// StatesStates peels two compact-states children.
	StatesStates(dst []float64, s1, s2 []int32, m1, m2 []float64, patterns, states, cats int)

	// Rescale divides each site of dst by its maximum across states and
	// categories and adds the log divisor into scale. Sites whose maximum
	// is at or below the rescale threshold are left untouched.
	Rescale(dst, scale []float64, patterns, states, cats int)

	// RootSites writes the per-site likelihood of one root buffer:
	// sum over categories (weighted) of sum over states of freq * partials.
	RootSites(partials, freqs, catWeights []float64, patterns, states, cats int, out []float64)

	// EdgeSites writes the per-site likelihood across one edge, plus the
	// first/second derivative numerators when the matrices and outputs are
	// supplied.
	EdgeSites(parent, child, prob, d1m, d2m, freqs, catWeights []float64, patterns, states, cats int, outL, outD1, outD2 []float64)
}

// For returns the kernel implementation bound to a selected resource.
func For(r resource.Resource) (Kernels, error) {
	switch {
	case r.Flags.Has(resource.SSE):
		return vector.New(), nil
	case r.Flags.Has(resource.CPU):
		return cpu.New(), nil
	default:
		return nil, fmt.Errorf("no kernel implementation for resource %q (flags %s)", r.Name, r.Flags)
	}
}
