// Package cpu binds goroutines to processor cores.
//
// A task pinned to a core locks its goroutine to an OS thread and restricts
// that thread's affinity to the requested core. Platforms without an
// affinity API still lock the thread so the pinning call stays uniform.
package cpu

import "runtime"

func wrap(cpuID int) int {
	n := runtime.NumCPU()
	if cpuID < 0 || cpuID >= n {
		cpuID = ((cpuID % n) + n) % n
	}
	return cpuID
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. It returns the core actually used (-1 when the platform cannot
// pin) and a release function that must be called from the same goroutine.
// The release function is valid even when err is non-nil.
//
// A negative cpuID only locks the thread.
func Pin(cpuID int) (int, func(), error) {
	runtime.LockOSThread()
	release := runtime.UnlockOSThread

	if cpuID < 0 {
		return -1, release, nil
	}

	core, err := pinToCore(cpuID)
	if err != nil {
		return -1, release, err
	}
	return core, release, nil
}
