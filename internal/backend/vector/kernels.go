// Package vector implements the vector-CPU kernels. Peeling is data-parallel
// across site patterns, so the heavy loops are fanned out over a persistent
// worker pool; matrix computation and aggregation reuse the scalar kernels,
// which they match bit for bit.
package vector

import (
	"runtime"

	"github.com/omsai/beagle-lib/internal/backend/cpu"
)

// minParallelPatterns is the point below which fan-out costs more than the
// loop itself.
const minParallelPatterns = 64

// Kernels is the pattern-parallel CPU implementation.
type Kernels struct {
	cpu.Kernels
	pool *pool
}

func New() *Kernels {
	return &Kernels{pool: newPool(runtime.GOMAXPROCS(0))}
}

func (*Kernels) Name() string { return "cpu-vector" }

// Close stops the worker pool. Called once, at instance finalization.
func (k *Kernels) Close() { k.pool.shutdown() }

func (k *Kernels) PartialsPartials(dst, p1, m1, p2, m2 []float64, patterns, states, cats int) {
	stride := states * cats
	k.pool.parallel(patterns, func(rs, re int) {
		k.Kernels.PartialsPartials(
			dst[rs*stride:re*stride],
			p1[rs*stride:re*stride], m1,
			p2[rs*stride:re*stride], m2,
			re-rs, states, cats)
	})
}

func (k *Kernels) StatesPartials(dst []float64, s1 []int32, m1, p2, m2 []float64, patterns, states, cats int) {
	stride := states * cats
	k.pool.parallel(patterns, func(rs, re int) {
		k.Kernels.StatesPartials(
			dst[rs*stride:re*stride],
			s1[rs:re], m1,
			p2[rs*stride:re*stride], m2,
			re-rs, states, cats)
	})
}

func (k *Kernels) StatesStates(dst []float64, s1, s2 []int32, m1, m2 []float64, patterns, states, cats int) {
	stride := states * cats
	k.pool.parallel(patterns, func(rs, re int) {
		k.Kernels.StatesStates(
			dst[rs*stride:re*stride],
			s1[rs:re], s2[rs:re], m1, m2,
			re-rs, states, cats)
	})
}
