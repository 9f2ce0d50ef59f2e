// Package workers sizes worker pools from the number of logical CPUs.
package workers

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

const (
	scanMultiplier = 4
	scanMin        = 4
	scanMax        = 32
)

// logicalCPUs is replaced in tests.
var logicalCPUs = func() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}

	return n
}

// Clamp returns cpus*multiplier bounded to [lower, upper].
func Clamp(cpus, multiplier, lower, upper int) int {
	workers := cpus * multiplier

	if workers < lower {
		workers = lower
	}
	if upper > 0 && workers > upper {
		workers = upper
	}

	return workers
}

// ForScan returns the scan pool size. A positive override wins.
//
// Scan tasks are I/O bound (stat, open, small reads), so the pool is
// four times the logical CPU count, never below 4 and never above 32.
func ForScan(override int) int {
	if override > 0 {
		return override
	}

	return Clamp(logicalCPUs(), scanMultiplier, scanMin, scanMax)
}
