//go:build !debug

package rtos

func debugLog(string, ...any) {}
