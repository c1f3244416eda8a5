//go:build windows

package cpu

import (
	"syscall"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	getCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
func pinToCore(cpuID int) (int, error) {
	cpuID = wrap(cpuID)

	handle, _, _ := getCurrentThread.Call()

	// Bit N = CPU N
	mask := uintptr(1) << uint(cpuID)

	prevMask, _, err := setThreadAffinityMask.Call(handle, mask)
	if prevMask == 0 {
		return 0, err
	}

	return cpuID, nil
}

// CurrentCore is not tracked on windows.
func CurrentCore() int {
	return -1
}
