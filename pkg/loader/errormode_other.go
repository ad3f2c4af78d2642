//go:build !windows

package loader

func SuppressErrorDialogs() (restore func()) {
	return func() {}
}
