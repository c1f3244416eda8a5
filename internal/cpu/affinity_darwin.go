//go:build darwin

package cpu

import "errors"

var errNoAffinity = errors.New("cpu: thread affinity is not supported on darwin")

// pinToCore is not available on macOS; the thread stays locked to the
// goroutine but may run on any core.
func pinToCore(cpuID int) (int, error) {
	return -1, errNoAffinity
}

// CurrentCore always returns -1 on macOS.
func CurrentCore() int {
	return -1
}
