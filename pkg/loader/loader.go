// Package loader maps extension DLLs for inspection.
//
// Two backends exist. Native maps the file with the Windows loader (imports
// and DllMain are not run) and calls the module's get_module export. Static
// never executes foreign code: it lays the PE sections out at the preferred
// image base and evaluates get_module by decoding its instructions.
package loader

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/memory"
	"github.com/carved4/phpext-inspect/pkg/resolve"
)

// Library is one mapped module. Close must be called exactly once.
type Library interface {
	Path() string
	// Architecture is the report tag for the pointer width the module was
	// read with.
	Architecture() string
	Memory() memory.Reader
	Symbols() resolve.Table
	// ModuleEntry turns the address of a get_module export into the address
	// of the zend_module_entry it returns.
	ModuleEntry(getter uint64) (uint64, error)
	Close() error
}

type Loader interface {
	Open(path string) (Library, error)
}

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeNative Mode = "native"
	ModeStatic Mode = "static"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeNative, ModeStatic:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want auto, native or static)", s)
}

// Resolve maps auto to the backend usable on this host.
func (m Mode) Resolve() Mode {
	if m != ModeAuto {
		return m
	}
	if runtime.GOOS == "windows" {
		return ModeNative
	}
	return ModeStatic
}

// New returns the loader for mode.
func New(mode Mode, logger zerolog.Logger) (Loader, error) {
	switch mode.Resolve() {
	case ModeNative:
		return newNative(logger)
	case ModeStatic:
		return NewStatic(logger), nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// HostArchitecture reports the tag for this process's pointer width.
func HostArchitecture() (string, error) {
	return architecture(int(unsafe.Sizeof(uintptr(0))))
}

func architecture(ptrSize int) (string, error) {
	switch ptrSize {
	case 4:
		return "x86", nil
	case 8:
		return "x64", nil
	}
	return "", errors.New(errors.ErrUnrecognizedArch)
}
