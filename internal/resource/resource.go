// Package resource enumerates the compute backends available to the engine
// and selects one per instance from requirement and preference flag sets.
package resource

import (
	"golang.org/x/sys/cpu"
)

// Resource describes one compute backend an instance can be bound to.
type Resource struct {
	ID    int
	Name  string
	Flags Flags
}

// List enumerates the resources available on this host, in a fixed order so
// selection tie-breaks are reproducible. The scalar CPU is always present;
// the vector CPU is added when the host exposes SIMD support.
func List() []Resource {
	list := []Resource{
		{ID: 0, Name: "cpu", Flags: CPU | Double | Single | Sync | Async},
	}
	if vectorSupported() {
		list = append(list, Resource{
			ID:    1,
			Name:  "cpu-vector",
			Flags: CPU | SSE | Double | Single | Sync | Async,
		})
	}
	return list
}

func vectorSupported() bool {
	return cpu.X86.HasSSE42 || cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD
}
