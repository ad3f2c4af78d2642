//go:build windows

package loader

import "golang.org/x/sys/windows"

// SuppressErrorDialogs stops the system from blocking on a critical-error
// dialog (e.g. a missing dependency of a malformed DLL). The returned func
// restores the previous mode.
func SuppressErrorDialogs() (restore func()) {
	prev := windows.SetErrorMode(windows.SEM_FAILCRITICALERRORS)
	return func() {
		windows.SetErrorMode(prev)
	}
}
