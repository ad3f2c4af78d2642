//go:build !windows

package loader

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

func newNative(zerolog.Logger) (Loader, error) {
	return nil, fmt.Errorf("native loading needs the Windows loader, not available on %s", runtime.GOOS)
}
