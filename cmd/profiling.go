package cmd

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spiffcs/devexport/internal/log"
)

// profiler captures a CPU profile for the duration of an export and a heap
// profile at its end. Empty paths disable the corresponding profile.
type profiler struct {
	cpuPath string
	memPath string
	cpuFile *os.File
}

func newProfiler(cpuPath, memPath string) *profiler {
	return &profiler{cpuPath: cpuPath, memPath: memPath}
}

func (p *profiler) Start() error {
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	p.cpuFile = f
	return nil
}

// Stop ends CPU profiling and writes the heap profile. Failures are logged;
// a profile never changes the export outcome.
func (p *profiler) Stop() {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			log.Warn("could not close CPU profile", "path", p.cpuPath, "error", err)
		}
		p.cpuFile = nil
	}

	if p.memPath == "" {
		return
	}
	f, err := os.Create(p.memPath)
	if err != nil {
		log.Warn("could not create memory profile", "path", p.memPath, "error", err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Warn("could not write memory profile", "path", p.memPath, "error", err)
	}
}
