// Package store owns the numerical state of one evaluation instance: partials
// buffers, compact tip-state buffers, eigendecomposition buffers, transition
// matrix buffers and per-buffer scale-factor records. All buffers are flat
// float64 slices; layout is pattern-major, then state, then category for
// partials, and category-blocked row-major for matrices.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIndex is returned when a buffer index is outside the count
	// declared at instance creation for its kind.
	ErrInvalidIndex = errors.New("invalid buffer index")

	// ErrAllocation is returned when the requested buffer counts cannot be
	// allocated.
	ErrAllocation = errors.New("buffer allocation failed")

	// ErrBadLength is returned when a bulk transfer does not match the
	// instance's declared dimensions.
	ErrBadLength = errors.New("array length does not match instance dimensions")
)

// Dims holds the structural sizes declared at instance creation.
type Dims struct {
	Tips            int
	PartialsBuffers int
	CompactBuffers  int
	States          int
	Patterns        int
	EigenBuffers    int
	MatrixBuffers   int
	Categories      int
}

// PartialsLen is the flat length of one partials buffer.
func (d Dims) PartialsLen() int { return d.Patterns * d.States * d.Categories }

// MatrixLen is the flat length of one transition matrix buffer, one
// states-squared block per category.
func (d Dims) MatrixLen() int { return d.Categories * d.States * d.States }

// Validate rejects dimension sets no backend could allocate.
func (d Dims) Validate() error {
	switch {
	case d.States < 2:
		return fmt.Errorf("%w: state count %d", ErrAllocation, d.States)
	case d.Patterns < 1:
		return fmt.Errorf("%w: pattern count %d", ErrAllocation, d.Patterns)
	case d.Categories < 1:
		return fmt.Errorf("%w: category count %d", ErrAllocation, d.Categories)
	case d.Tips < 0 || d.PartialsBuffers < d.Tips:
		return fmt.Errorf("%w: %d partials buffers for %d tips", ErrAllocation, d.PartialsBuffers, d.Tips)
	case d.CompactBuffers < 0 || d.CompactBuffers > d.PartialsBuffers:
		return fmt.Errorf("%w: compact buffer count %d", ErrAllocation, d.CompactBuffers)
	case d.EigenBuffers < 0 || d.MatrixBuffers < 0:
		return fmt.Errorf("%w: negative buffer count", ErrAllocation)
	}
	return nil
}

// Eigen holds one spectral factorization of a rate matrix. Vectors and
// Inverse are row-major states x states; Values has one eigenvalue per state.
// The triple is taken on trust: the store never verifies that
// Vectors * diag(Values) * Inverse reconstructs a generator.
type Eigen struct {
	Vectors []float64
	Inverse []float64
	Values  []float64
}

// Store is the buffer set exclusively owned by one instance. It is not
// safe for concurrent use; the engine serializes access per instance.
type Store struct {
	dims   Dims
	single bool

	partials [][]float64 // indexed by partials buffer, nil until first load
	compact  [][]int32   // compact tip states shadowing low partials indices
	scales   [][]float64 // per-site accumulated log scale, nil until rescaled
	eigens   []*Eigen
	matrices [][]float64 // nil until first load or matrix update
}

// New allocates the buffer index space for the given dimensions. Buffer
// payloads are allocated lazily on first load so unused slots cost nothing.
func New(dims Dims, single bool) (*Store, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		dims:     dims,
		single:   single,
		partials: make([][]float64, dims.PartialsBuffers),
		compact:  make([][]int32, dims.CompactBuffers),
		scales:   make([][]float64, dims.PartialsBuffers),
		eigens:   make([]*Eigen, dims.EigenBuffers),
		matrices: make([][]float64, dims.MatrixBuffers),
	}, nil
}

// Dims returns the dimensions declared at creation.
func (s *Store) Dims() Dims { return s.dims }

// Single reports whether stored values are narrowed to float32 precision.
func (s *Store) Single() bool { return s.single }

func (s *Store) checkPartials(index int) error {
	if index < 0 || index >= s.dims.PartialsBuffers {
		return fmt.Errorf("%w: partials buffer %d of %d", ErrInvalidIndex, index, s.dims.PartialsBuffers)
	}
	return nil
}

func (s *Store) checkMatrix(index int) error {
	if index < 0 || index >= s.dims.MatrixBuffers {
		return fmt.Errorf("%w: matrix buffer %d of %d", ErrInvalidIndex, index, s.dims.MatrixBuffers)
	}
	return nil
}

// SetTipStates loads compact states for a tip buffer. Values must lie in
// [0, states]; the value states itself is the ambiguous/missing sentinel.
// Any partials previously loaded at the same index stop shadowing it, and
// its scale record is cleared.
func (s *Store) SetTipStates(index int, states []int32) error {
	if index < 0 || index >= s.dims.CompactBuffers {
		return fmt.Errorf("%w: compact buffer %d of %d", ErrInvalidIndex, index, s.dims.CompactBuffers)
	}
	if len(states) != s.dims.Patterns {
		return fmt.Errorf("%w: got %d states, want %d", ErrBadLength, len(states), s.dims.Patterns)
	}
	for i, v := range states {
		if v < 0 || int(v) > s.dims.States {
			return fmt.Errorf("%w: state %d at pattern %d", ErrBadLength, v, i)
		}
	}
	buf := make([]int32, len(states))
	copy(buf, states)
	s.compact[index] = buf
	s.partials[index] = nil
	s.scales[index] = nil
	return nil
}

// SetPartials loads values into a partials buffer. The input is either one
// category worth (patterns x states, replicated across categories) or the
// full patterns x states x categories array. Loading clears the buffer's
// scale record and any compact states at the same index.
func (s *Store) SetPartials(index int, values []float64) error {
	if err := s.checkPartials(index); err != nil {
		return err
	}
	full := s.dims.PartialsLen()
	one := s.dims.Patterns * s.dims.States
	buf := make([]float64, full)
	switch len(values) {
	case full:
		copy(buf, values)
	case one:
		// Replicate the single-category plane across all categories.
		for p := 0; p < s.dims.Patterns; p++ {
			for st := 0; st < s.dims.States; st++ {
				v := values[p*s.dims.States+st]
				base := (p*s.dims.States + st) * s.dims.Categories
				for c := 0; c < s.dims.Categories; c++ {
					buf[base+c] = v
				}
			}
		}
	default:
		return fmt.Errorf("%w: got %d values, want %d or %d", ErrBadLength, len(values), one, full)
	}
	s.Narrow(buf)
	s.partials[index] = buf
	s.scales[index] = nil
	s.ClearCompact(index)
	return nil
}

// GetPartials copies a partials buffer into out. Compact tips are expanded
// to their partials form on readback.
func (s *Store) GetPartials(index int, out []float64) error {
	if err := s.checkPartials(index); err != nil {
		return err
	}
	if len(out) != s.dims.PartialsLen() {
		return fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(out), s.dims.PartialsLen())
	}
	src := s.partials[index]
	if src == nil {
		if index < len(s.compact) && s.compact[index] != nil {
			s.expandCompact(index)
			src = s.partials[index]
		} else {
			return fmt.Errorf("%w: partials buffer %d never loaded", ErrInvalidIndex, index)
		}
	}
	copy(out, src)
	return nil
}

// SetEigen loads an eigendecomposition triple.
func (s *Store) SetEigen(index int, vectors, inverse, values []float64) error {
	if index < 0 || index >= s.dims.EigenBuffers {
		return fmt.Errorf("%w: eigen buffer %d of %d", ErrInvalidIndex, index, s.dims.EigenBuffers)
	}
	n := s.dims.States
	if len(vectors) != n*n || len(inverse) != n*n || len(values) != n {
		return fmt.Errorf("%w: eigen triple sizes %d/%d/%d for %d states",
			ErrBadLength, len(vectors), len(inverse), len(values), n)
	}
	e := &Eigen{
		Vectors: make([]float64, n*n),
		Inverse: make([]float64, n*n),
		Values:  make([]float64, n),
	}
	copy(e.Vectors, vectors)
	copy(e.Inverse, inverse)
	copy(e.Values, values)
	s.eigens[index] = e
	return nil
}

// SetMatrix loads a precomputed transition matrix, bypassing the eigen
// engine. The input is either one states x states block (replicated across
// categories) or one block per category.
func (s *Store) SetMatrix(index int, values []float64) error {
	if err := s.checkMatrix(index); err != nil {
		return err
	}
	full := s.dims.MatrixLen()
	one := s.dims.States * s.dims.States
	buf := make([]float64, full)
	switch len(values) {
	case full:
		copy(buf, values)
	case one:
		for c := 0; c < s.dims.Categories; c++ {
			copy(buf[c*one:(c+1)*one], values)
		}
	default:
		return fmt.Errorf("%w: got %d values, want %d or %d", ErrBadLength, len(values), one, full)
	}
	s.Narrow(buf)
	s.matrices[index] = buf
	return nil
}

// GetMatrix copies a matrix buffer into out.
func (s *Store) GetMatrix(index int, out []float64) error {
	if err := s.checkMatrix(index); err != nil {
		return err
	}
	if len(out) != s.dims.MatrixLen() {
		return fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(out), s.dims.MatrixLen())
	}
	src := s.matrices[index]
	if src == nil {
		return fmt.Errorf("%w: matrix buffer %d never loaded", ErrInvalidIndex, index)
	}
	copy(out, src)
	return nil
}

// Partials returns the raw partials slice for kernel use, allocating it if
// the buffer has never been written. Compact tips remain compact; callers
// that need partials form use PartialsExpanded.
func (s *Store) Partials(index int) []float64 {
	if s.partials[index] == nil {
		s.partials[index] = make([]float64, s.dims.PartialsLen())
	}
	return s.partials[index]
}

// PartialsExpanded returns the buffer in partials form, expanding a compact
// tip into one-hot rows (all ones for the ambiguous sentinel) on first use.
func (s *Store) PartialsExpanded(index int) []float64 {
	if s.partials[index] == nil && index < len(s.compact) && s.compact[index] != nil {
		s.expandCompact(index)
	}
	return s.Partials(index)
}

// ClearCompact drops the compact tip shadow at an index. Called whenever the
// buffer is overwritten in partials form, so later reads resolve to the new
// partials rather than stale states.
func (s *Store) ClearCompact(index int) {
	if index < len(s.compact) {
		s.compact[index] = nil
	}
}

// Compact returns the compact states for a buffer index, or nil when the
// buffer holds (or defaults to) partials form.
func (s *Store) Compact(index int) []int32 {
	if index < len(s.compact) {
		return s.compact[index]
	}
	return nil
}

func (s *Store) expandCompact(index int) {
	buf := make([]float64, s.dims.PartialsLen())
	states := s.compact[index]
	for p, v := range states {
		base := p * s.dims.States * s.dims.Categories
		if int(v) == s.dims.States {
			// Ambiguous: uniform likelihood over all states.
			for i := base; i < base+s.dims.States*s.dims.Categories; i++ {
				buf[i] = 1
			}
			continue
		}
		for c := 0; c < s.dims.Categories; c++ {
			buf[base+int(v)*s.dims.Categories+c] = 1
		}
	}
	s.partials[index] = buf
}

// Eigen returns the decomposition at index, or an error if never loaded.
func (s *Store) Eigen(index int) (*Eigen, error) {
	if index < 0 || index >= s.dims.EigenBuffers {
		return nil, fmt.Errorf("%w: eigen buffer %d of %d", ErrInvalidIndex, index, s.dims.EigenBuffers)
	}
	if s.eigens[index] == nil {
		return nil, fmt.Errorf("%w: eigen buffer %d never loaded", ErrInvalidIndex, index)
	}
	return s.eigens[index], nil
}

// Matrix returns the raw matrix slice for kernel use, allocating on demand.
func (s *Store) Matrix(index int) []float64 {
	if s.matrices[index] == nil {
		s.matrices[index] = make([]float64, s.dims.MatrixLen())
	}
	return s.matrices[index]
}

// CheckPartialsIndex bounds-checks a partials buffer index.
func (s *Store) CheckPartialsIndex(index int) error { return s.checkPartials(index) }

// CheckMatrixIndex bounds-checks a matrix buffer index.
func (s *Store) CheckMatrixIndex(index int) error { return s.checkMatrix(index) }

// Scale returns the accumulated per-site log scale record for a partials
// buffer, or nil when the buffer has never been rescaled.
func (s *Store) Scale(index int) []float64 {
	return s.scales[index]
}

// ResetScale replaces the buffer's scale record with the element-wise sum of
// its children's records, the seed for additive composition up the tree.
func (s *Store) ResetScale(index int, children ...int) []float64 {
	rec := make([]float64, s.dims.Patterns)
	for _, child := range children {
		if cs := s.scales[child]; cs != nil {
			for i, v := range cs {
				rec[i] += v
			}
		}
	}
	s.scales[index] = rec
	return rec
}

// ClearScale drops the scale record, used when a buffer is overwritten.
func (s *Store) ClearScale(index int) {
	s.scales[index] = nil
}

// Narrow rounds every value through float32 when the instance runs in
// single precision, so stored values match what a single-precision backend
// would hold.
func (s *Store) Narrow(buf []float64) {
	if !s.single {
		return
	}
	for i, v := range buf {
		buf[i] = float64(float32(v))
	}
}
