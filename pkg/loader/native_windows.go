//go:build windows

package loader

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/memory"
	"github.com/carved4/phpext-inspect/pkg/resolve"
)

// Native maps extensions with LoadLibraryEx into this process.
type Native struct {
	logger zerolog.Logger
	arch   string
}

func newNative(logger zerolog.Logger) (Loader, error) {
	arch, err := HostArchitecture()
	if err != nil {
		return nil, err
	}
	return &Native{
		logger: logger.With().Str("loader", "native").Logger(),
		arch:   arch,
	}, nil
}

func (n *Native) Open(path string) (Library, error) {
	// DONT_RESOLVE_DLL_REFERENCES: no imports are bound and DllMain is not run
	h, err := windows.LoadLibraryEx(path, 0, windows.DONT_RESOLVE_DLL_REFERENCES)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOpen, err)
	}

	mem := processMemory{}
	exports, err := resolve.FromImage(mem, uint64(h))
	if err != nil {
		n.logger.Debug().Err(err).Str("path", path).Msg("no usable export table")
		exports = resolve.Exports{}
	}

	n.logger.Debug().
		Str("path", path).
		Str("base", fmt.Sprintf("0x%x", uintptr(h))).
		Int("exports", len(exports)).
		Msg("mapped module")

	return &module{
		path:    path,
		arch:    n.arch,
		handle:  h,
		mem:     mem,
		exports: exports,
	}, nil
}

type module struct {
	path    string
	arch    string
	handle  windows.Handle
	mem     processMemory
	exports resolve.Exports

	closeOnce sync.Once
	closeErr  error
}

func (m *module) Path() string           { return m.path }
func (m *module) Architecture() string   { return m.arch }
func (m *module) Memory() memory.Reader  { return m.mem }
func (m *module) Symbols() resolve.Table { return m.exports }

// ModuleEntry runs the extension's get_module. This is foreign code; the
// returned address is only ever read through processMemory.
func (m *module) ModuleEntry(getter uint64) (uint64, error) {
	if getter == 0 || getter > uint64(^uintptr(0)) {
		return 0, fmt.Errorf("invalid get_module address 0x%x", getter)
	}
	r1, _, _ := syscall.SyscallN(uintptr(getter))
	return uint64(r1), nil
}

func (m *module) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = windows.FreeLibrary(m.handle)
	})
	return m.closeErr
}

// processMemory reads this process's address space with ReadProcessMemory
// so an invalid pointer from the extension surfaces as an error.
type processMemory struct{}

func (processMemory) PointerSize() int { return int(unsafe.Sizeof(uintptr(0))) }

func (processMemory) ReadAt(p []byte, addr uint64) error {
	if len(p) == 0 {
		return nil
	}
	if addr == 0 || addr > uint64(^uintptr(0)) {
		return fmt.Errorf("%w: 0x%x", memory.ErrFault, addr)
	}
	var read uintptr
	err := windows.ReadProcessMemory(windows.CurrentProcess(), uintptr(addr), &p[0], uintptr(len(p)), &read)
	if err != nil {
		return fmt.Errorf("%w: 0x%x: %v", memory.ErrFault, addr, err)
	}
	if read != uintptr(len(p)) {
		return fmt.Errorf("%w: 0x%x short read %d/%d", memory.ErrFault, addr, read, len(p))
	}
	return nil
}
