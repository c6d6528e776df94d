// Package engine ties the pieces together: it owns the instance registry and
// drives resource selection, buffer loads, transition matrix computation,
// peeling and likelihood aggregation against the kernels an instance was
// bound to at creation.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/omsai/beagle-lib/internal/backend"
	"github.com/omsai/beagle-lib/internal/logger"
	"github.com/omsai/beagle-lib/internal/resource"
	"github.com/omsai/beagle-lib/internal/store"
)

// Config carries everything needed to create one instance.
type Config struct {
	Dims store.Dims

	// Restrict limits the instance to the listed resource ids; nil means no
	// restriction.
	Restrict []int

	// Required flags must all be present on the bound resource. Single and
	// Async here also switch the instance's precision and synchrony modes.
	Required resource.Flags

	// Preferred flags rank otherwise-acceptable resources; non-binding.
	Preferred resource.Flags
}

// Engine is the top-level evaluation context factory. It is safe for
// concurrent use; individual instances are not, and expect a single caller.
type Engine struct {
	mu        sync.Mutex
	log       logger.Logger
	resources []resource.Resource
	instances map[int]*instance
	nextID    int
}

type instance struct {
	id      int
	res     resource.Resource
	kern    backend.Kernels
	store   *store.Store
	rates   []float64 // per-category rate multipliers on branch lengths
	weights []float64 // per-category mixture weights at aggregation
	queue   *queue    // nil for synchronous instances
}

// New creates an Engine over the host's available resources.
func New(log logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		log:       log,
		resources: resource.List(),
		instances: make(map[int]*instance),
	}
}

// Resources returns the enumerated compute resources, in selection order.
func (e *Engine) Resources() []resource.Resource {
	out := make([]resource.Resource, len(e.resources))
	copy(out, e.resources)
	return out
}

// CreateInstance allocates a new evaluation context bound to one resource
// and returns its id.
func (e *Engine) CreateInstance(cfg Config) (int, error) {
	res, err := resource.Select(e.resources, cfg.Restrict, cfg.Required, cfg.Preferred)
	if err != nil {
		return -1, err
	}
	kern, err := backend.For(res)
	if err != nil {
		return -1, err
	}

	single := cfg.Required.Has(resource.Single)
	st, err := store.New(cfg.Dims, single)
	if err != nil {
		return -1, err
	}

	in := &instance{
		res:     res,
		kern:    kern,
		store:   st,
		rates:   make([]float64, cfg.Dims.Categories),
		weights: make([]float64, cfg.Dims.Categories),
	}
	for c := range in.rates {
		in.rates[c] = 1
		in.weights[c] = 1 / float64(cfg.Dims.Categories)
	}
	if cfg.Required.Has(resource.Async) {
		in.queue = newQueue()
	}

	e.mu.Lock()
	in.id = e.nextID
	e.nextID++
	e.instances[in.id] = in
	e.mu.Unlock()

	e.log.Debug("instance created",
		"id", in.id,
		"resource", res.Name,
		"states", cfg.Dims.States,
		"patterns", cfg.Dims.Patterns,
		"categories", cfg.Dims.Categories,
		"single", single,
		"async", in.queue != nil,
	)
	return in.id, nil
}

// InstanceInfo is a diagnostic snapshot of one live instance.
type InstanceInfo struct {
	ID       int
	Resource string
	Dims     store.Dims
	Single   bool
	Async    bool
}

// Instances lists the live instances in id order.
func (e *Engine) Instances() []InstanceInfo {
	e.mu.Lock()
	out := make([]InstanceInfo, 0, len(e.instances))
	for _, in := range e.instances {
		out = append(out, InstanceInfo{
			ID:       in.id,
			Resource: in.res.Name,
			Dims:     in.store.Dims(),
			Single:   in.store.Single(),
			Async:    in.queue != nil,
		})
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Details returns the resource an instance is bound to, for diagnostics.
func (e *Engine) Details(id int) (resource.Resource, error) {
	in, err := e.get(id)
	if err != nil {
		return resource.Resource{}, err
	}
	return in.res, nil
}

// Finalize waits for outstanding work on each listed instance and releases
// its buffers. Finalizing an unknown or already-finalized id is an error;
// earlier ids in the list are still released.
func (e *Engine) Finalize(ids ...int) error {
	var firstErr error
	for _, id := range ids {
		e.mu.Lock()
		in, ok := e.instances[id]
		if ok {
			delete(e.instances, id)
		}
		e.mu.Unlock()
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: id %d", ErrInvalidInstance, id)
			}
			continue
		}
		if in.queue != nil {
			in.queue.shutdown()
		}
		in.kern.Close()
		in.store = nil
		e.log.Debug("instance finalized", "id", id)
	}
	return firstErr
}

func (e *Engine) get(id int) (*instance, error) {
	e.mu.Lock()
	in, ok := e.instances[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidInstance, id)
	}
	return in, nil
}

// run executes fn on the instance's queue and waits for it on async
// instances, or inline on synchronous ones. Every buffer access goes through
// run or deferred, so submission order is execution order.
func (in *instance) run(fn func() error) error {
	if in.queue == nil {
		return fn()
	}
	var err error
	done := make(chan struct{})
	in.queue.submit(func() {
		err = fn()
		close(done)
	})
	<-done
	return err
}

// deferred enqueues fn without waiting on async instances; synchronous
// instances run it inline.
func (in *instance) deferred(fn func()) {
	if in.queue == nil {
		fn()
		return
	}
	in.queue.submit(fn)
}

// SetTipStates loads compact states for one tip buffer. The sentinel value
// equal to the state count marks a missing observation.
func (e *Engine) SetTipStates(id, bufferIndex int, states []int32) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	return in.run(func() error { return in.store.SetTipStates(bufferIndex, states) })
}

// SetPartials loads tip (or precomputed) partials into a buffer.
func (e *Engine) SetPartials(id, bufferIndex int, values []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	return in.run(func() error { return in.store.SetPartials(bufferIndex, values) })
}

// GetPartials reads a partials buffer back. On async instances this waits
// for all previously submitted writes, making it a synchronization point.
func (e *Engine) GetPartials(id, bufferIndex int, out []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	return in.run(func() error { return in.store.GetPartials(bufferIndex, out) })
}

// SetEigenDecomposition loads one spectral factorization.
func (e *Engine) SetEigenDecomposition(id, eigenIndex int, vectors, inverse, values []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	return in.run(func() error { return in.store.SetEigen(eigenIndex, vectors, inverse, values) })
}

// SetTransitionMatrix loads a precomputed matrix, bypassing the eigen path.
func (e *Engine) SetTransitionMatrix(id, matrixIndex int, values []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	return in.run(func() error { return in.store.SetMatrix(matrixIndex, values) })
}

// GetTransitionMatrix reads a matrix buffer back.
func (e *Engine) GetTransitionMatrix(id, matrixIndex int, out []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	return in.run(func() error { return in.store.GetMatrix(matrixIndex, out) })
}

// SetCategoryRates replaces the per-category branch length multipliers.
func (e *Engine) SetCategoryRates(id int, rates []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	if len(rates) != in.store.Dims().Categories {
		return fmt.Errorf("%w: %d rates for %d categories", ErrBadArguments, len(rates), in.store.Dims().Categories)
	}
	return in.run(func() error {
		copy(in.rates, rates)
		return nil
	})
}

// SetCategoryWeights replaces the per-category mixture weights used at
// aggregation.
func (e *Engine) SetCategoryWeights(id int, weights []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	if len(weights) != in.store.Dims().Categories {
		return fmt.Errorf("%w: %d weights for %d categories", ErrBadArguments, len(weights), in.store.Dims().Categories)
	}
	return in.run(func() error {
		copy(in.weights, weights)
		return nil
	})
}
