//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableWindowsANSI turns on virtual terminal processing so the colored
// output renders on Windows 10 and later.
func enableWindowsANSI() {
	h := windows.Handle(os.Stdout.Fd())

	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return
	}
	_ = windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
}
