// Package memory reads little-endian values out of foreign module memory.
//
// Every address handed out by a loaded extension is untrusted, so all access
// goes through a Reader that reports a fault as an error instead of touching
// the address directly.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrFault is returned when an address range is not backed by readable memory.
var ErrFault = errors.New("memory fault")

// ErrUnterminated is returned when no NUL is found within MaxString bytes.
var ErrUnterminated = errors.New("unterminated string")

// MaxString bounds how far ReadCString scans for a terminator.
const MaxString = 32768

// Reader is a view of a module's address space.
type Reader interface {
	// PointerSize is the width of a pointer in the inspected image, 4 or 8.
	PointerSize() int
	// ReadAt fills p from addr or fails without a partial result.
	ReadAt(p []byte, addr uint64) error
}

func ReadU8(r Reader, addr uint64) (uint8, error) {
	var b [1]byte
	if err := r.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return b[0], nil
}

func ReadU16(r Reader, addr uint64) (uint16, error) {
	var b [2]byte
	if err := r.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func ReadU32(r Reader, addr uint64) (uint32, error) {
	var b [4]byte
	if err := r.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func ReadU64(r Reader, addr uint64) (uint64, error) {
	var b [8]byte
	if err := r.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadPointer reads a pointer of the reader's width.
func ReadPointer(r Reader, addr uint64) (uint64, error) {
	switch r.PointerSize() {
	case 4:
		v, err := ReadU32(r, addr)
		return uint64(v), err
	case 8:
		return ReadU64(r, addr)
	default:
		return 0, fmt.Errorf("unsupported pointer size %d", r.PointerSize())
	}
}

// ReadCString reads a NUL-terminated ANSI string. A zero address yields "".
// A run longer than MaxString is an error, not a truncated name.
func ReadCString(r Reader, addr uint64) (string, error) {
	if addr == 0 {
		return "", nil
	}

	var buf []byte
	var b [1]byte
	for i := uint64(0); i < MaxString; i++ {
		if err := r.ReadAt(b[:], addr+i); err != nil {
			return "", fmt.Errorf("reading string at 0x%x: %w", addr, err)
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", fmt.Errorf("%w at 0x%x: no terminator within %d bytes", ErrUnterminated, addr, MaxString)
}

// ReadStringPointer dereferences a char* field at addr.
func ReadStringPointer(r Reader, addr uint64) (string, error) {
	ptr, err := ReadPointer(r, addr)
	if err != nil {
		return "", err
	}
	return ReadCString(r, ptr)
}

type region struct {
	base uint64
	data []byte
	size uint64
}

// Map is a Reader over a set of non-overlapping regions. Bytes past the end
// of a region's data but inside its virtual size read as zero, the way an
// image section is zero-filled when mapped.
type Map struct {
	ptrSize int
	regions []region
}

func NewMap(ptrSize int) *Map {
	return &Map{ptrSize: ptrSize}
}

// Add maps data at base, reserving size bytes. A size smaller than the data
// is raised to len(data).
func (m *Map) Add(base uint64, data []byte, size uint64) {
	if size < uint64(len(data)) {
		size = uint64(len(data))
	}
	m.regions = append(m.regions, region{base: base, data: data, size: size})
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].base < m.regions[j].base
	})
}

func (m *Map) PointerSize() int { return m.ptrSize }

func (m *Map) ReadAt(p []byte, addr uint64) error {
	n := uint64(len(p))
	for _, rg := range m.regions {
		if addr < rg.base || addr-rg.base >= rg.size {
			continue
		}
		off := addr - rg.base
		if rg.size-off < n {
			return fmt.Errorf("%w: 0x%x+%d crosses region end", ErrFault, addr, n)
		}
		copied := 0
		if off < uint64(len(rg.data)) {
			copied = copy(p, rg.data[off:])
		}
		clear(p[copied:])
		return nil
	}
	return fmt.Errorf("%w: 0x%x unmapped", ErrFault, addr)
}
