package httpserver

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSnapshot is the process/host resource reading surfaced on
// /readyz (§6's diagnostics), grounded on the teacher's declared but
// previously-unwired shirou/gopsutil/v3 dependency.
type ResourceSnapshot struct {
	MemoryUsedPercent float64
	MemoryAvailable   uint64
}

// Snapshot reads the current host memory usage.
func Snapshot() (ResourceSnapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSnapshot{}, err
	}
	return ResourceSnapshot{
		MemoryUsedPercent: vm.UsedPercent,
		MemoryAvailable:   vm.Available,
	}, nil
}

// MemoryHealthCheck fails /readyz once host memory usage crosses
// maxUsedPercent, guarding against scheduling new work onto a saturated host.
func MemoryHealthCheck(maxUsedPercent float64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		snap, err := Snapshot()
		if err != nil {
			return err
		}
		if snap.MemoryUsedPercent > maxUsedPercent {
			return fmt.Errorf("host memory usage %.1f%% exceeds %.1f%%", snap.MemoryUsedPercent, maxUsedPercent)
		}
		return nil
	}
}
