package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/omsai/beagle-lib/internal/engine"
	"github.com/omsai/beagle-lib/internal/resource"
	"github.com/omsai/beagle-lib/internal/scenario"
)

// TipData mirrors scenario.Tip for the JSON surface.
type TipData struct {
	States   []int32   `json:"states,omitempty"`
	Partials []float64 `json:"partials,omitempty"`
}

// EigenData is a caller-supplied spectral factorization.
type EigenData struct {
	Vectors []float64 `json:"vectors"`
	Inverse []float64 `json:"inverse"`
	Values  []float64 `json:"values"`
}

// EvaluateRequest is one stateless likelihood evaluation.
type EvaluateRequest struct {
	Name       string `json:"name,omitempty"`
	States     int    `json:"states"`
	Patterns   int    `json:"patterns"`
	Categories int    `json:"categories,omitempty"`

	Model string     `json:"model,omitempty"`
	Eigen *EigenData `json:"eigen,omitempty"`

	Frequencies     []float64 `json:"frequencies"`
	CategoryRates   []float64 `json:"category_rates,omitempty"`
	CategoryWeights []float64 `json:"category_weights,omitempty"`

	Tips       []TipData `json:"tips"`
	Edges      []float64 `json:"edges"`
	Operations [][]int   `json:"operations"`
	Root       int       `json:"root"`
	Rescale    bool      `json:"rescale,omitempty"`

	// Backend selection, all optional.
	Restrict  []int    `json:"resource_restrict,omitempty"`
	Required  []string `json:"required,omitempty"`
	Preferred []string `json:"preferred,omitempty"`
}

// EvaluateResponse returns per-site log likelihoods and their sum.
type EvaluateResponse struct {
	RequestID      string    `json:"request_id"`
	Resource       string    `json:"resource"`
	LogLikelihoods []float64 `json:"log_likelihoods"`
	Total          float64   `json:"total"`
}

// ResourceInfo describes one enumerated compute resource.
type ResourceInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Flags string `json:"flags"`
}

type ResourceList struct {
	Resources []ResourceInfo `json:"resources"`
}

// InstanceInfo describes one live evaluation instance.
type InstanceInfo struct {
	ID         int    `json:"id"`
	Resource   string `json:"resource"`
	States     int    `json:"states"`
	Patterns   int    `json:"patterns"`
	Categories int    `json:"categories"`
	Single     bool   `json:"single"`
	Async      bool   `json:"async"`
}

type InstanceList struct {
	Instances []InstanceInfo `json:"instances"`
}

// ErrorBody is the error envelope for every non-2xx response.
type ErrorBody struct {
	RequestID string `json:"request_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

func resourceInfo(r resource.Resource) ResourceInfo {
	return ResourceInfo{ID: r.ID, Name: r.Name, Flags: r.Flags.String()}
}

func instanceInfo(in engine.InstanceInfo) InstanceInfo {
	return InstanceInfo{
		ID:         in.ID,
		Resource:   in.Resource,
		States:     in.Dims.States,
		Patterns:   in.Dims.Patterns,
		Categories: in.Dims.Categories,
		Single:     in.Single,
		Async:      in.Async,
	}
}

func (r *EvaluateRequest) toScenario() (*scenario.Scenario, scenario.Options, error) {
	tips := make([]scenario.Tip, len(r.Tips))
	for i, t := range r.Tips {
		tips[i] = scenario.Tip{States: t.States, Partials: t.Partials}
	}
	s := &scenario.Scenario{
		Name:            r.Name,
		States:          r.States,
		Patterns:        r.Patterns,
		Categories:      r.Categories,
		Model:           r.Model,
		Frequencies:     r.Frequencies,
		CategoryRates:   r.CategoryRates,
		CategoryWeights: r.CategoryWeights,
		Tips:            tips,
		Edges:           r.Edges,
		Operations:      r.Operations,
		Root:            r.Root,
		Rescale:         r.Rescale,
	}
	if r.Eigen != nil {
		s.Eigen = &scenario.Eigen{Vectors: r.Eigen.Vectors, Inverse: r.Eigen.Inverse, Values: r.Eigen.Values}
	}
	if s.Categories == 0 {
		s.Categories = 1
	}
	if err := s.Validate(); err != nil {
		return nil, scenario.Options{}, err
	}

	opts := scenario.Options{Restrict: r.Restrict}
	var err error
	if opts.Required, err = parseFlags(r.Required); err != nil {
		return nil, scenario.Options{}, err
	}
	if opts.Preferred, err = parseFlags(r.Preferred); err != nil {
		return nil, scenario.Options{}, err
	}
	return s, opts, nil
}

func parseFlags(names []string) (resource.Flags, error) {
	var flags resource.Flags
	for _, name := range names {
		f, ok := resource.ParseFlag(name)
		if !ok {
			return 0, fmt.Errorf("unknown capability flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// writeJSON encodes through goccy/go-json rather than echo's default codec.
func writeJSON(c *echo.Context, status int, body any) error {
	blob, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.JSONBlob(status, blob)
}

func writeError(c *echo.Context, status int, requestID, kind, msg string) error {
	return writeJSON(c, status, map[string]ErrorBody{
		"error": {RequestID: requestID, Type: kind, Message: msg},
	})
}
