package vector

import (
	"math"
	"math/rand"
	"runtime"
	"testing"
	"time"

	"github.com/omsai/beagle-lib/internal/backend/cpu"
)

// Vector kernels must agree with the scalar reference on every peel form,
// on pattern counts both below and above the parallel cutoff.
func TestVectorMatchesScalar(t *testing.T) {
	t.Parallel()

	for _, patterns := range []int{1, 7, minParallelPatterns, 500} {
		patterns := patterns
		const states, cats = 4, 3
		rng := rand.New(rand.NewSource(int64(patterns)))

		randSlice := func(n int) []float64 {
			s := make([]float64, n)
			for i := range s {
				s[i] = rng.Float64()
			}
			return s
		}

		p1 := randSlice(patterns * states * cats)
		p2 := randSlice(patterns * states * cats)
		m1 := randSlice(cats * states * states)
		m2 := randSlice(cats * states * states)
		s1 := make([]int32, patterns)
		s2 := make([]int32, patterns)
		for i := range s1 {
			s1[i] = int32(rng.Intn(states + 1)) // sentinel included
			s2[i] = int32(rng.Intn(states))
		}

		scalar := cpu.New()
		vec := New()

		check := func(name string, got, want []float64) {
			t.Helper()
			for i := range want {
				if math.Abs(got[i]-want[i]) > 1e-15 {
					t.Fatalf("patterns=%d %s: mismatch at %d: %v vs %v", patterns, name, i, got[i], want[i])
				}
			}
		}

		want := make([]float64, patterns*states*cats)
		got := make([]float64, patterns*states*cats)

		scalar.PartialsPartials(want, p1, m1, p2, m2, patterns, states, cats)
		vec.PartialsPartials(got, p1, m1, p2, m2, patterns, states, cats)
		check("PartialsPartials", got, want)

		scalar.StatesPartials(want, s1, m1, p2, m2, patterns, states, cats)
		vec.StatesPartials(got, s1, m1, p2, m2, patterns, states, cats)
		check("StatesPartials", got, want)

		scalar.StatesStates(want, s1, s2, m1, m2, patterns, states, cats)
		vec.StatesStates(got, s1, s2, m1, m2, patterns, states, cats)
		check("StatesStates", got, want)
	}
}

func TestPoolCoversFullRange(t *testing.T) {
	t.Parallel()

	p := newPool(4)
	n := minParallelPatterns * 3
	seen := make([]int32, n)
	p.parallel(n, func(rs, re int) {
		for i := rs; i < re; i++ {
			seen[i]++
		}
	})
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("pattern %d visited %d times", i, v)
		}
	}
}

func TestPoolInlinesSmallRanges(t *testing.T) {
	t.Parallel()

	p := newPool(4)
	count := 0
	p.parallel(3, func(rs, re int) {
		if rs != 0 || re != 3 {
			t.Fatalf("expected inline full range, got [%d,%d)", rs, re)
		}
		count++
	})
	if count != 1 {
		t.Fatalf("expected exactly one inline call, got %d", count)
	}
}

// Close must stop the pool workers so finalized instances do not leak
// goroutines. Runs without t.Parallel so the count is stable.
func TestCloseStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()

	kernels := make([]*Kernels, 5)
	for i := range kernels {
		kernels[i] = New()
	}
	if running := runtime.NumGoroutine(); running <= before {
		t.Fatalf("expected worker goroutines to start, count stayed at %d", running)
	}
	for _, k := range kernels {
		k.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if running := runtime.NumGoroutine(); running > before {
		t.Fatalf("%d goroutines still running after Close, started with %d", running, before)
	}
}
