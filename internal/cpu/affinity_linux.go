//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
//
// Out of range ids wrap around the available cores.
func pinToCore(cpuID int) (int, error) {
	cpuID = wrap(cpuID)

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return 0, err
	}

	return cpuID, nil
}

// CurrentCore reads back the calling thread's affinity and returns the
// single core it is bound to, or -1 if it may run on several.
func CurrentCore() int {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(0, &mask); err != nil {
		return -1
	}
	if mask.Count() != 1 {
		return -1
	}
	for i := range runtime.NumCPU() {
		if mask.IsSet(i) {
			return i
		}
	}
	return -1
}
