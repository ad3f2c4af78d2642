package loader

import (
	"fmt"
	"io"
	"os"

	"github.com/Binject/debug/pe"
	"github.com/rs/zerolog"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/memory"
	"github.com/carved4/phpext-inspect/pkg/resolve"
)

const (
	machineI386  = 0x14c
	machineAMD64 = 0x8664
	// ARM Thumb-2 images open but cannot be evaluated
	machineARMNT = 0x1c4
)

// Static reads extensions from disk without loading them.
type Static struct {
	logger zerolog.Logger
}

func NewStatic(logger zerolog.Logger) *Static {
	return &Static{logger: logger.With().Str("loader", "static").Logger()}
}

func (s *Static) Open(path string) (Library, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOpen, err)
	}
	defer errors.DeferClose(s.logger, file, "closing image file failed")

	f, err := parsePE(file)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOpen, err)
	}

	imageBase, ptrSize, err := optionalHeader(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOpen, err)
	}

	mem := memory.NewMap(ptrSize)
	for _, section := range f.Sections {
		data, err := section.Data()
		if err != nil {
			s.logger.Debug().Err(err).Str("section", section.Name).Msg("section data unavailable, mapping zeros")
			data = nil
		}
		mem.Add(imageBase+uint64(section.VirtualAddress), data, uint64(section.VirtualSize))
	}

	exports, err := resolve.FromFile(f, imageBase)
	if err != nil {
		// a DLL without an export directory is simply not an extension
		s.logger.Debug().Err(err).Str("path", path).Msg("no usable export table")
		exports = resolve.Exports{}
	}

	s.logger.Debug().
		Str("path", path).
		Str("machine", fmt.Sprintf("0x%x", f.Machine)).
		Uint64("image_base", imageBase).
		Int("exports", len(exports)).
		Msg("mapped image")

	return &image{
		path:    path,
		machine: f.Machine,
		mem:     mem,
		exports: exports,
	}, nil
}

// parsePE reads the headers from ra. Hostile headers can make the parser
// panic; that is reported as a failure to open this file only.
func parsePE(ra io.ReaderAt) (f *pe.File, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("%w: headers: parser panic: %v", resolve.ErrCorrupt, r)
		}
	}()
	return pe.NewFile(ra)
}

func optionalHeader(f *pe.File) (imageBase uint64, ptrSize int, err error) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(oh.ImageBase), 4, nil
	case *pe.OptionalHeader64:
		return oh.ImageBase, 8, nil
	}
	return 0, 0, fmt.Errorf("missing optional header")
}

// image is a PE file laid out at its preferred base. Pointers inside the
// file are link-time addresses, so no relocation is needed to follow them.
type image struct {
	path    string
	machine uint16
	mem     *memory.Map
	exports resolve.Exports
}

func (im *image) Path() string           { return im.path }
func (im *image) Memory() memory.Reader  { return im.mem }
func (im *image) Symbols() resolve.Table { return im.exports }
func (im *image) Close() error           { return nil }

func (im *image) Architecture() string {
	switch im.machine {
	case machineI386:
		return "x86"
	case machineAMD64:
		return "x64"
	}
	return fmt.Sprintf("machine-0x%x", im.machine)
}

func (im *image) ModuleEntry(getter uint64) (uint64, error) {
	switch im.machine {
	case machineI386:
		return evalGetter(im.mem, getter, 32)
	case machineAMD64:
		return evalGetter(im.mem, getter, 64)
	}
	return 0, fmt.Errorf("cannot evaluate get_module for machine 0x%x", im.machine)
}
