package engine

import (
	"fmt"

	"github.com/omsai/beagle-lib/internal/store"
)

// Operation is one partials update: combine two children through their
// transition matrices into a destination buffer. Indices refer to the
// instance's partials and matrix buffer spaces.
type Operation struct {
	Destination    int
	Child1Partials int
	Child1Matrix   int
	Child2Partials int
	Child2Matrix   int
}

// UpdatePartials executes the operation list strictly in order. The caller
// is responsible for topological validity: each child buffer must already
// hold its final value, either loaded tip data or the output of an earlier
// operation. Out-of-order lists produce stale-data results, not errors.
//
// With rescale set, each destination is divided per site by its maximum
// across states and categories, and the log divisors accumulate into the
// destination's scale record on top of the children's records. Without it,
// any stale scale record on the destination is dropped.
//
// On asynchronous instances the peeling is enqueued and this returns after
// validation only; a later readback or aggregation waits for it.
func (e *Engine) UpdatePartials(id int, ops []Operation, rescale bool) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	st := in.store
	for i, op := range ops {
		if err := st.CheckPartialsIndex(op.Destination); err != nil {
			return fmt.Errorf("operation %d destination: %w", i, err)
		}
		if err := st.CheckPartialsIndex(op.Child1Partials); err != nil {
			return fmt.Errorf("operation %d child 1: %w", i, err)
		}
		if err := st.CheckPartialsIndex(op.Child2Partials); err != nil {
			return fmt.Errorf("operation %d child 2: %w", i, err)
		}
		if err := st.CheckMatrixIndex(op.Child1Matrix); err != nil {
			return fmt.Errorf("operation %d matrix 1: %w", i, err)
		}
		if err := st.CheckMatrixIndex(op.Child2Matrix); err != nil {
			return fmt.Errorf("operation %d matrix 2: %w", i, err)
		}
		if op.Destination == op.Child1Partials || op.Destination == op.Child2Partials {
			return fmt.Errorf("%w: operation %d destination %d reads itself", store.ErrInvalidIndex, i, op.Destination)
		}
	}

	batch := make([]Operation, len(ops))
	copy(batch, ops)
	in.deferred(func() {
		for _, op := range batch {
			in.peel(op, rescale)
		}
	})
	return nil
}

func (in *instance) peel(op Operation, rescale bool) {
	st := in.store
	d := st.Dims()
	dst := st.Partials(op.Destination)
	m1 := st.Matrix(op.Child1Matrix)
	m2 := st.Matrix(op.Child2Matrix)
	s1 := st.Compact(op.Child1Partials)
	s2 := st.Compact(op.Child2Partials)
	st.ClearCompact(op.Destination)

	switch {
	case s1 != nil && s2 != nil:
		in.kern.StatesStates(dst, s1, s2, m1, m2, d.Patterns, d.States, d.Categories)
	case s1 != nil:
		in.kern.StatesPartials(dst, s1, m1, st.PartialsExpanded(op.Child2Partials), m2, d.Patterns, d.States, d.Categories)
	case s2 != nil:
		in.kern.StatesPartials(dst, s2, m2, st.PartialsExpanded(op.Child1Partials), m1, d.Patterns, d.States, d.Categories)
	default:
		in.kern.PartialsPartials(dst, st.PartialsExpanded(op.Child1Partials), m1, st.PartialsExpanded(op.Child2Partials), m2, d.Patterns, d.States, d.Categories)
	}

	if rescale {
		rec := st.ResetScale(op.Destination, op.Child1Partials, op.Child2Partials)
		in.kern.Rescale(dst, rec, d.Patterns, d.States, d.Categories)
	} else {
		st.ClearScale(op.Destination)
	}
	st.Narrow(dst)
}
