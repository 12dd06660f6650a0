// Package sysinfo reads CPU and memory figures from the host to size the
// encoder pool.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/backmassage/condor/internal/encoder"
)

const gib = 1 << 30

// cpusPerWorker is how many logical CPUs one encoder process of each kind
// keeps busy on its own.
var cpusPerWorker = map[encoder.Kind]int{
	encoder.AOM:    3,
	encoder.VPX:    3,
	encoder.Rav1e:  4,
	encoder.SVTAV1: 6,
	encoder.X264:   8,
	encoder.X265:   8,
}

// memoryPerWorker is the resident size of one encoder process at the given
// frame height, rounded up to whole GiB.
func memoryPerWorker(k encoder.Kind, height int) uint64 {
	per := uint64(1)
	switch {
	case height > 1440:
		per = 4
	case height > 720:
		per = 2
	}
	if k == encoder.AOM || k == encoder.Rav1e {
		per *= 2
	}
	return per * gib
}

// Host reads host resources through gopsutil.
type Host struct{}

// AvailableMemory returns memory available to new processes, in bytes.
func (Host) AvailableMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read memory: %w", err)
	}
	return vm.Available, nil
}

// LogicalCPUs returns the number of logical CPUs, falling back to the Go
// runtime's view when the host cannot be read.
func (Host) LogicalCPUs(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// DefaultWorkers sizes the pool for kind at the given frame height: enough
// workers to keep every CPU busy, capped by what fits in available memory.
// It never returns less than one.
func (h Host) DefaultWorkers(ctx context.Context, k encoder.Kind, height int) int {
	per, ok := cpusPerWorker[k]
	if !ok {
		per = 4
	}
	workers := h.LogicalCPUs(ctx) / per
	if avail, err := h.AvailableMemory(ctx); err == nil {
		workers = min(workers, int(avail/memoryPerWorker(k, height)))
	}
	return max(workers, 1)
}
