package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/cpu"
)

type output struct {
	GoVersion string          `json:"go_version"`
	GoOS      string          `json:"go_os"`
	GoArch    string          `json:"go_arch"`
	CPUs      int             `json:"cpus"`
	Features  map[string]bool `json:"features"`
}

// Dumps the CPU features the resource enumerator consults, for debugging
// vector kernel selection on a given host.
func main() {
	features := map[string]bool{
		"SSE2":   cpu.X86.HasSSE2,
		"SSE3":   cpu.X86.HasSSE3,
		"SSE41":  cpu.X86.HasSSE41,
		"SSE42":  cpu.X86.HasSSE42,
		"AVX":    cpu.X86.HasAVX,
		"AVX2":   cpu.X86.HasAVX2,
		"FMA":    cpu.X86.HasFMA,
		"AVX512": cpu.X86.HasAVX512,
		"ASIMD":  cpu.ARM64.HasASIMD,
		"FP":     cpu.ARM64.HasFP,
	}

	out := output{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		Features:  features,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
