package scenario

import (
	"math"
	"strings"
	"testing"

	"github.com/omsai/beagle-lib/internal/engine"
)

const starYAML = `
name: three-tip star
states: 4
patterns: 1
model: jc69
frequencies: [0.25, 0.25, 0.25, 0.25]
tips:
  - states: [0]
  - states: [0]
  - states: [0]
edges: [0.1, 0.1, 0.1, 0]
operations:
  - [3, 0, 0, 1, 1]
  - [4, 3, 3, 2, 2]
root: 4
`

func TestParseAndRunStar(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(starYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Name != "three-tip star" || s.Categories != 1 {
		t.Fatalf("unexpected scenario: %+v", s)
	}

	d := s.Dims()
	if d.PartialsBuffers != 5 || d.CompactBuffers != 3 || d.MatrixBuffers != 4 {
		t.Fatalf("unexpected dims: %+v", d)
	}

	res, err := s.Run(engine.New(nil), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	e := math.Exp(-4.0 / 3 * 0.1)
	same := 0.25 + 0.75*e
	diff := 0.25 - 0.25*e
	want := math.Log(0.25 * (same*same*same + 3*diff*diff*diff))
	if math.Abs(res.LogLikelihoods[0]-want) > 1e-6 {
		t.Fatalf("log-likelihood = %v, want %v", res.LogLikelihoods[0], want)
	}
	if res.Total != res.LogLikelihoods[0] {
		t.Fatalf("total should equal the single site value")
	}
	if res.Resource == "" {
		t.Fatal("result should name the bound resource")
	}
}

func TestRescaleFlagDoesNotChangeResult(t *testing.T) {
	t.Parallel()

	plain, err := Parse([]byte(starYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rescaled, err := Parse([]byte(strings.Replace(starYAML, "root: 4", "root: 4\nrescale: true", 1)))
	if err != nil {
		t.Fatalf("Parse rescaled: %v", err)
	}

	e := engine.New(nil)
	a, err := plain.Run(e, Options{})
	if err != nil {
		t.Fatalf("Run plain: %v", err)
	}
	b, err := rescaled.Run(e, Options{})
	if err != nil {
		t.Fatalf("Run rescaled: %v", err)
	}
	if math.Abs(a.LogLikelihoods[0]-b.LogLikelihoods[0]) > 1e-12 {
		t.Fatalf("rescale changed scenario result: %v vs %v", a.LogLikelihoods[0], b.LogLikelihoods[0])
	}
}

func TestValidateCatchesBadScenarios(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"no model", "states: 4\npatterns: 1\nfrequencies: [0.25,0.25,0.25,0.25]\ntips: [{states: [0]}, {states: [1]}]\nedges: [0.1]\noperations: [[2,0,0,1,0]]\nroot: 2", "no model"},
		{"wrong op arity", strings.Replace(starYAML, "[3, 0, 0, 1, 1]", "[3, 0, 0]", 1), "5"},
		{"jc69 states", strings.Replace(starYAML, "states: 4", "states: 2", 1), "jc69"},
		{"freq mismatch", strings.Replace(starYAML, "[0.25, 0.25, 0.25, 0.25]", "[0.5, 0.5]", 1), "frequencies"},
		{"tip both forms", strings.Replace(starYAML, "- states: [0]", "- {states: [0], partials: [1,0,0,0]}", 1), "exactly one"},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.input)); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestJukesCantorReconstructsGenerator(t *testing.T) {
	t.Parallel()

	// V diag(values) V^-1 must be the normalized equal-rates generator:
	// -1 on the diagonal and 1/3 elsewhere.
	jc := JukesCantor()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var q float64
			for k := 0; k < 4; k++ {
				q += jc.Vectors[i*4+k] * jc.Values[k] * jc.Inverse[k*4+j]
			}
			want := 1.0 / 3
			if i == j {
				want = -1
			}
			if math.Abs(q-want) > 1e-12 {
				t.Fatalf("Q[%d][%d] = %v, want %v", i, j, q, want)
			}
		}
	}
}
