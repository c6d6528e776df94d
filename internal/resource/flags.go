package resource

import "strings"

// Flags is a capability bitset describing what a compute resource offers and
// how an instance wants to run on it. The low bits carry execution modes, the
// high bits carry architecture classes.
type Flags uint32

const (
	Double Flags = 1 << 0 // double precision computation
	Single Flags = 1 << 1 // single precision computation
	Async  Flags = 1 << 2 // asynchronous submission
	Sync   Flags = 1 << 3 // synchronous (blocking) calls

	CPU  Flags = 1 << 16 // plain scalar CPU
	GPU  Flags = 1 << 17
	FPGA Flags = 1 << 18
	SSE  Flags = 1 << 19 // vectorized CPU
	Cell Flags = 1 << 20
)

// Has reports whether every bit in want is set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Count returns the number of set bits, used to rank preference matches.
func (f Flags) Count() int {
	n := 0
	for f != 0 {
		f &= f - 1
		n++
	}
	return n
}

var flagNames = []struct {
	flag Flags
	name string
}{
	{Double, "double"},
	{Single, "single"},
	{Async, "async"},
	{Sync, "sync"},
	{CPU, "cpu"},
	{GPU, "gpu"},
	{FPGA, "fpga"},
	{SSE, "sse"},
	{Cell, "cell"},
}

// String renders the set flags as a comma-separated list.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	parts := make([]string, 0, 4)
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseFlag converts a flag name to its bit, for CLI and config use.
func ParseFlag(name string) (Flags, bool) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}
