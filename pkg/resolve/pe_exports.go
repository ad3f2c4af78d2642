package resolve

import (
	"errors"
	"fmt"
	"io"

	"github.com/Binject/debug/pe"

	"github.com/carved4/phpext-inspect/pkg/memory"
)

// ErrCorrupt is returned when the PE parser gives up on a malformed image.
var ErrCorrupt = errors.New("corrupt PE image")

// recoverParse turns a parser panic on hostile input into ErrCorrupt.
func recoverParse(err *error, what string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: parser panic: %v", ErrCorrupt, what, r)
	}
}

// FromFile builds an export table for a PE file mapped at imageBase.
func FromFile(f *pe.File, imageBase uint64) (table Exports, err error) {
	defer recoverParse(&err, "export directory")

	exports, err := f.Exports()
	if err != nil {
		return nil, fmt.Errorf("reading export directory: %w", err)
	}
	table = make(Exports, len(exports))
	for _, export := range exports {
		if export.Name == "" || export.VirtualAddress == 0 {
			continue
		}
		table[export.Name] = imageBase + uint64(export.VirtualAddress)
	}
	return table, nil
}

// FromImage builds an export table from a module already mapped at base,
// reading the image through r so a damaged header cannot fault the process.
func FromImage(r memory.Reader, base uint64) (Exports, error) {
	if base == 0 {
		return nil, fmt.Errorf("nil module base")
	}

	// Verify DOS header
	magic, err := memory.ReadU16(r, base)
	if err != nil {
		return nil, err
	}
	if magic != 0x5a4d { // MZ
		return nil, fmt.Errorf("missing MZ signature at 0x%x", base)
	}

	peOff, err := memory.ReadU32(r, base+0x3c)
	if err != nil {
		return nil, err
	}
	if peOff >= 1024 {
		return nil, fmt.Errorf("e_lfanew 0x%x out of range", peOff)
	}
	sig, err := memory.ReadU32(r, base+uint64(peOff))
	if err != nil {
		return nil, err
	}
	if sig != 0x4550 { // PE\0\0
		return nil, fmt.Errorf("missing PE signature at 0x%x", base+uint64(peOff))
	}

	// SizeOfImage sits at the same optional header offset for PE32 and PE32+
	sizeOfImage, err := memory.ReadU32(r, base+uint64(peOff)+24+56)
	if err != nil {
		return nil, err
	}

	file, err := openImage(&imageReaderAt{r: r, base: base, size: int64(sizeOfImage)})
	if err != nil {
		return nil, fmt.Errorf("parsing mapped image: %w", err)
	}
	defer file.Close()

	return FromFile(file, base)
}

func openImage(ra io.ReaderAt) (f *pe.File, err error) {
	defer recoverParse(&err, "headers")
	return pe.NewFileFromMemory(ra)
}

// imageReaderAt exposes a mapped image as an io.ReaderAt of offsets from base.
type imageReaderAt struct {
	r    memory.Reader
	base uint64
	size int64
}

func (ra *imageReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= ra.size {
		return 0, fmt.Errorf("offset out of range")
	}
	n := len(p)
	var err error
	if int64(n) > ra.size-off {
		n = int(ra.size - off)
		err = io.EOF
	}
	if rerr := ra.r.ReadAt(p[:n], ra.base+uint64(off)); rerr != nil {
		return 0, rerr
	}
	return n, err
}
