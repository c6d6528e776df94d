// Package scenario loads YAML descriptions of a likelihood evaluation (tip
// data, substitution model, branch lengths and a peeling operation list)
// and runs them through an engine instance.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/omsai/beagle-lib/internal/engine"
	"github.com/omsai/beagle-lib/internal/resource"
	"github.com/omsai/beagle-lib/internal/store"
)

// Tip holds one leaf's observations, either compact states (the value
// `states` meaning missing) or explicit partials.
type Tip struct {
	States   []int32   `yaml:"states,omitempty"`
	Partials []float64 `yaml:"partials,omitempty"`
}

// Eigen is a user-supplied spectral factorization.
type Eigen struct {
	Vectors []float64 `yaml:"vectors"`
	Inverse []float64 `yaml:"inverse"`
	Values  []float64 `yaml:"values"`
}

// Scenario is one self-contained evaluation: enough to create an instance,
// load it, peel it and integrate at the root.
type Scenario struct {
	Name       string `yaml:"name,omitempty"`
	States     int    `yaml:"states"`
	Patterns   int    `yaml:"patterns"`
	Categories int    `yaml:"categories,omitempty"`

	// Model is a named preset ("jc69") or empty when Eigen is given.
	Model string `yaml:"model,omitempty"`
	Eigen *Eigen `yaml:"eigen,omitempty"`

	Frequencies     []float64 `yaml:"frequencies"`
	CategoryRates   []float64 `yaml:"category_rates,omitempty"`
	CategoryWeights []float64 `yaml:"category_weights,omitempty"`

	Tips []Tip `yaml:"tips"`

	// Edges holds one branch length per transition matrix buffer; matrix i
	// is computed at Edges[i].
	Edges []float64 `yaml:"edges"`

	// Operations are 5-tuples: destination, child 1 partials, child 1
	// matrix, child 2 partials, child 2 matrix. Order matters; children
	// must be computed (or loaded) before their parents.
	Operations [][]int `yaml:"operations"`

	// Root is the partials buffer integrated against the frequencies.
	Root int `yaml:"root"`

	Rescale bool `yaml:"rescale,omitempty"`
}

// Result carries the outcome of one scenario run.
type Result struct {
	Name           string    `json:"name,omitempty"`
	Resource       string    `json:"resource"`
	LogLikelihoods []float64 `json:"log_likelihoods"`
	Total          float64   `json:"total"`
}

// Options select and configure the backend a scenario runs on.
type Options struct {
	Restrict  []int
	Required  resource.Flags
	Preferred resource.Flags
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario and validates it.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Categories == 0 {
		s.Categories = 1
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario's internal consistency. Buffer index bounds
// are left to the engine.
func (s *Scenario) Validate() error {
	if s.States < 2 {
		return fmt.Errorf("scenario: state count %d", s.States)
	}
	if s.Patterns < 1 {
		return fmt.Errorf("scenario: pattern count %d", s.Patterns)
	}
	if len(s.Tips) < 2 {
		return fmt.Errorf("scenario: %d tips", len(s.Tips))
	}
	if s.Model == "" && s.Eigen == nil {
		return fmt.Errorf("scenario: no model: set model or eigen")
	}
	if s.Model != "" && s.Model != "jc69" {
		return fmt.Errorf("scenario: unknown model %q", s.Model)
	}
	if s.Model == "jc69" && s.States != 4 {
		return fmt.Errorf("scenario: jc69 requires 4 states, got %d", s.States)
	}
	if len(s.Frequencies) != s.States {
		return fmt.Errorf("scenario: %d frequencies for %d states", len(s.Frequencies), s.States)
	}
	if len(s.Edges) == 0 {
		return fmt.Errorf("scenario: no edges")
	}
	if len(s.Operations) == 0 {
		return fmt.Errorf("scenario: no operations")
	}
	for i, op := range s.Operations {
		if len(op) != 5 {
			return fmt.Errorf("scenario: operation %d has %d entries, want 5", i, len(op))
		}
	}
	for i, tip := range s.Tips {
		if (tip.States == nil) == (tip.Partials == nil) {
			return fmt.Errorf("scenario: tip %d needs exactly one of states or partials", i)
		}
	}
	if s.CategoryRates != nil && len(s.CategoryRates) != s.Categories {
		return fmt.Errorf("scenario: %d category rates for %d categories", len(s.CategoryRates), s.Categories)
	}
	if s.CategoryWeights != nil && len(s.CategoryWeights) != s.Categories {
		return fmt.Errorf("scenario: %d category weights for %d categories", len(s.CategoryWeights), s.Categories)
	}
	return nil
}

// Dims derives the instance dimensions: one partials buffer per tip plus one
// per operation destination past the tips.
func (s *Scenario) Dims() store.Dims {
	maxPartials := len(s.Tips) - 1
	for _, op := range s.Operations {
		for _, idx := range []int{op[0], op[1], op[3]} {
			if idx > maxPartials {
				maxPartials = idx
			}
		}
	}
	if s.Root > maxPartials {
		maxPartials = s.Root
	}
	compact := 0
	for i, tip := range s.Tips {
		if tip.States != nil && i >= compact {
			compact = i + 1
		}
	}
	return store.Dims{
		Tips:            len(s.Tips),
		PartialsBuffers: maxPartials + 1,
		CompactBuffers:  compact,
		States:          s.States,
		Patterns:        s.Patterns,
		EigenBuffers:    1,
		MatrixBuffers:   len(s.Edges),
		Categories:      s.Categories,
	}
}

func (s *Scenario) eigen() *Eigen {
	if s.Eigen != nil {
		return s.Eigen
	}
	return JukesCantor()
}

// Run evaluates the scenario on a fresh instance and finalizes it.
func (s *Scenario) Run(e *engine.Engine, opts Options) (*Result, error) {
	id, err := e.CreateInstance(engine.Config{
		Dims:      s.Dims(),
		Restrict:  opts.Restrict,
		Required:  opts.Required,
		Preferred: opts.Preferred,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.Finalize(id) }()

	for i, tip := range s.Tips {
		if tip.States != nil {
			err = e.SetTipStates(id, i, tip.States)
		} else {
			err = e.SetPartials(id, i, tip.Partials)
		}
		if err != nil {
			return nil, fmt.Errorf("tip %d: %w", i, err)
		}
	}

	eig := s.eigen()
	if err := e.SetEigenDecomposition(id, 0, eig.Vectors, eig.Inverse, eig.Values); err != nil {
		return nil, err
	}
	if s.CategoryRates != nil {
		if err := e.SetCategoryRates(id, s.CategoryRates); err != nil {
			return nil, err
		}
	}
	if s.CategoryWeights != nil {
		if err := e.SetCategoryWeights(id, s.CategoryWeights); err != nil {
			return nil, err
		}
	}

	probIndices := make([]int, len(s.Edges))
	for i := range probIndices {
		probIndices[i] = i
	}
	if err := e.UpdateTransitionMatrices(id, 0, probIndices, nil, nil, s.Edges); err != nil {
		return nil, err
	}

	ops := make([]engine.Operation, len(s.Operations))
	for i, op := range s.Operations {
		ops[i] = engine.Operation{
			Destination:    op[0],
			Child1Partials: op[1],
			Child1Matrix:   op[2],
			Child2Partials: op[3],
			Child2Matrix:   op[4],
		}
	}
	if err := e.UpdatePartials(id, ops, s.Rescale); err != nil {
		return nil, err
	}

	out := make([]float64, s.Patterns)
	err = e.RootLogLikelihoods(id, engine.RootRequest{
		Buffers:     []int{s.Root},
		Weights:     []float64{1},
		Frequencies: [][]float64{s.Frequencies},
	}, out)
	if err != nil {
		return nil, err
	}

	res, err := e.Details(id)
	if err != nil {
		return nil, err
	}

	total := 0.0
	for _, v := range out {
		total += v
	}
	return &Result{
		Name:           s.Name,
		Resource:       res.Name,
		LogLikelihoods: out,
		Total:          total,
	}, nil
}

// JukesCantor is the canonical four-state equal-rates decomposition,
// normalized to one expected substitution per site.
func JukesCantor() *Eigen {
	return &Eigen{
		Vectors: []float64{
			1, 2, 0, 0.5,
			1, -2, 0.5, 0,
			1, 2, 0, -0.5,
			1, -2, -0.5, 0,
		},
		Inverse: []float64{
			0.25, 0.25, 0.25, 0.25,
			0.125, -0.125, 0.125, -0.125,
			0, 1, 0, -1,
			1, 0, -1, 0,
		},
		Values: []float64{0, -4.0 / 3, -4.0 / 3, -4.0 / 3},
	}
}
