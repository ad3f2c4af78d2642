// Package testutil builds small PE images for tests.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/carved4/phpext-inspect/pkg/memory"
)

const (
	MachineI386  = 0x14c
	MachineAMD64 = 0x8664

	peOffset         = 0x80
	fileAlignment    = 0x200
	sectionAlignment = 0x1000
	sectionHeaderLen = 40

	scnCode = 0x60000020 // CNT_CODE | MEM_EXECUTE | MEM_READ
	scnData = 0xc0000040 // CNT_INITIALIZED_DATA | MEM_READ | MEM_WRITE
)

// Section is one section of an Image. RawSize overrides the aligned size
// of Data on disk, which lets tests truncate a section.
type Section struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
	Data           []byte
	RawSize        uint32
	Code           bool
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// Image is a DLL laid out by Bytes. Only the export directory is filled in
// the data directories.
type Image struct {
	Machine   uint16
	ImageBase uint64
	Sections  []Section
	Exports   DataDirectory
}

func (im *Image) pe64() bool { return im.Machine == MachineAMD64 }

func (im *Image) optionalHeaderLen() int {
	if im.pe64() {
		return 240
	}
	return 224
}

func (im *Image) headersLen() uint32 {
	n := peOffset + 4 + 20 + im.optionalHeaderLen() + sectionHeaderLen*len(im.Sections)
	return align(uint32(n), fileAlignment)
}

func (im *Image) sizeOfImage() uint32 {
	size := uint32(sectionAlignment)
	for _, s := range im.Sections {
		if end := align(s.VirtualAddress+virtualSize(s), sectionAlignment); end > size {
			size = end
		}
	}
	return size
}

func virtualSize(s Section) uint32 {
	if s.VirtualSize != 0 {
		return s.VirtualSize
	}
	return uint32(len(s.Data))
}

func rawSize(s Section) uint32 {
	if s.RawSize != 0 {
		return s.RawSize
	}
	return align(uint32(len(s.Data)), fileAlignment)
}

func align(v, to uint32) uint32 {
	return (v + to - 1) &^ (to - 1)
}

// Bytes renders the image as a file on disk.
func (im *Image) Bytes() []byte {
	le := binary.LittleEndian
	hdrLen := im.headersLen()

	rawOffsets := make([]uint32, len(im.Sections))
	total := hdrLen
	for i, s := range im.Sections {
		rawOffsets[i] = total
		total += rawSize(s)
	}
	buf := make([]byte, total)

	// DOS header
	buf[0], buf[1] = 'M', 'Z'
	le.PutUint32(buf[0x3c:], peOffset)

	copy(buf[peOffset:], "PE\x00\x00")
	fh := buf[peOffset+4:]
	le.PutUint16(fh[0:], im.Machine)
	le.PutUint16(fh[2:], uint16(len(im.Sections)))
	le.PutUint16(fh[16:], uint16(im.optionalHeaderLen()))
	characteristics := uint16(0x2002) // DLL | EXECUTABLE_IMAGE
	if im.pe64() {
		characteristics |= 0x0020 // LARGE_ADDRESS_AWARE
	} else {
		characteristics |= 0x0100 // 32BIT_MACHINE
	}
	le.PutUint16(fh[18:], characteristics)

	oh := buf[peOffset+24:]
	var dirs []byte
	if im.pe64() {
		le.PutUint16(oh[0:], 0x20b)
		le.PutUint64(oh[24:], im.ImageBase)
		le.PutUint32(oh[32:], sectionAlignment)
		le.PutUint32(oh[36:], fileAlignment)
		le.PutUint16(oh[48:], 6)
		le.PutUint32(oh[56:], im.sizeOfImage())
		le.PutUint32(oh[60:], hdrLen)
		le.PutUint16(oh[68:], 2)
		le.PutUint64(oh[72:], 0x100000)
		le.PutUint64(oh[80:], 0x1000)
		le.PutUint64(oh[88:], 0x100000)
		le.PutUint64(oh[96:], 0x1000)
		le.PutUint32(oh[108:], 16)
		dirs = oh[112:]
	} else {
		le.PutUint16(oh[0:], 0x10b)
		le.PutUint32(oh[28:], uint32(im.ImageBase))
		le.PutUint32(oh[32:], sectionAlignment)
		le.PutUint32(oh[36:], fileAlignment)
		le.PutUint16(oh[48:], 6)
		le.PutUint32(oh[56:], im.sizeOfImage())
		le.PutUint32(oh[60:], hdrLen)
		le.PutUint16(oh[68:], 2)
		le.PutUint32(oh[72:], 0x100000)
		le.PutUint32(oh[76:], 0x1000)
		le.PutUint32(oh[80:], 0x100000)
		le.PutUint32(oh[84:], 0x1000)
		le.PutUint32(oh[92:], 16)
		dirs = oh[96:]
	}
	le.PutUint32(dirs[0:], im.Exports.VirtualAddress)
	le.PutUint32(dirs[4:], im.Exports.Size)

	sh := buf[peOffset+24+im.optionalHeaderLen():]
	for i, s := range im.Sections {
		h := sh[i*sectionHeaderLen:]
		copy(h[0:8], s.Name)
		le.PutUint32(h[8:], virtualSize(s))
		le.PutUint32(h[12:], s.VirtualAddress)
		le.PutUint32(h[16:], rawSize(s))
		le.PutUint32(h[20:], rawOffsets[i])
		if s.Code {
			le.PutUint32(h[36:], scnCode)
		} else {
			le.PutUint32(h[36:], scnData)
		}
		n := min(uint32(len(s.Data)), rawSize(s))
		copy(buf[rawOffsets[i]:], s.Data[:n])
	}
	return buf
}

// WriteFile writes the image into a test temp directory.
func (im *Image) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, im.Bytes(), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Map lays the image out at base the way the Windows loader would: headers
// at base and every section at base+VirtualAddress.
func (im *Image) Map(m *memory.Map, base uint64) {
	file := im.Bytes()
	hdrLen := im.headersLen()
	m.Add(base, file[:hdrLen], sectionAlignment)
	for _, s := range im.Sections {
		data := s.Data
		if n := rawSize(s); uint32(len(data)) > n {
			data = data[:n]
		}
		m.Add(base+uint64(s.VirtualAddress), data, uint64(align(virtualSize(s), sectionAlignment)))
	}
}

// Export names an RVA in the export table.
type Export struct {
	Name string
	RVA  uint32
}

// ExportSection builds an .edata section at rva holding the export
// directory, the three export tables and every name.
func ExportSection(rva uint32, dllName string, exports []Export) (Section, DataDirectory) {
	le := binary.LittleEndian
	sorted := append([]Export(nil), exports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	n := uint32(len(sorted))
	addrTable := uint32(40)
	nameTable := addrTable + 4*n
	ordTable := nameTable + 4*n
	names := ordTable + 2*n

	data := make([]byte, names)
	appendString := func(s string) uint32 {
		off := uint32(len(data))
		data = append(data, s...)
		data = append(data, 0)
		return rva + off
	}

	dllNameRVA := appendString(dllName)
	for i, e := range sorted {
		nameRVA := appendString(e.Name)
		le.PutUint32(data[addrTable+4*uint32(i):], e.RVA)
		le.PutUint32(data[nameTable+4*uint32(i):], nameRVA)
		le.PutUint16(data[ordTable+2*uint32(i):], uint16(i))
	}

	le.PutUint32(data[12:], dllNameRVA)
	le.PutUint32(data[16:], 1) // ordinal base
	le.PutUint32(data[20:], n)
	le.PutUint32(data[24:], n)
	le.PutUint32(data[28:], rva+addrTable)
	le.PutUint32(data[32:], rva+nameTable)
	le.PutUint32(data[36:], rva+ordTable)

	return Section{Name: ".edata", VirtualAddress: rva, Data: data},
		DataDirectory{VirtualAddress: rva, Size: uint32(len(data))}
}
