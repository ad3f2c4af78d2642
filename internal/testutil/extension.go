package testutil

import (
	"encoding/binary"

	"github.com/carved4/phpext-inspect/pkg/zend"
)

const (
	TextRVA  = 0x1000
	DataRVA  = 0x2000
	EdataRVA = 0x3000

	ModuleEntryRVA    = DataRVA
	ExtensionEntryRVA = DataRVA + 0x100
	MarkerRVA         = DataRVA + 0x180
	stringsRVA        = DataRVA + 0x200

	ImageBase32 = 0x10000000
	ImageBase64 = 0x180000000
)

// ZendEntry is the string part of a zend_extension_entry.
type ZendEntry struct {
	Name      string
	Version   string
	Author    string
	URL       string
	Copyright string
}

// Extension describes an extension DLL: a get_module returning a
// zend_module_entry when APINo is set, and a zend_extension_entry when Zend
// is set. Empty strings are stored as null pointers.
type Extension struct {
	Machine uint16
	APINo   uint32
	ZTS     uint8
	Name    string
	Version string

	Zend *ZendEntry
	// Marker exports extension_version_info next to zend_extension_entry.
	Marker bool
	// Decorate prefixes every export with an underscore.
	Decorate bool
}

func (e Extension) ImageBase() uint64 {
	if e.Machine == MachineAMD64 {
		return ImageBase64
	}
	return ImageBase32
}

// Image lays the extension out as .text, .data and .edata.
func (e Extension) Image() *Image {
	base := e.ImageBase()
	ptrSize := 4
	if e.Machine == MachineAMD64 {
		ptrSize = 8
	}

	data := make([]byte, 0x1000)
	next := uint32(stringsRVA)
	str := func(s string) uint64 {
		if s == "" {
			return 0
		}
		rva := next
		copy(data[rva-DataRVA:], s)
		next += (uint32(len(s)) + 1 + 15) &^ 15
		return base + uint64(rva)
	}
	putPtr := func(rva uint32, v uint64) {
		off := rva - DataRVA
		if ptrSize == 8 {
			binary.LittleEndian.PutUint64(data[off:], v)
		} else {
			binary.LittleEndian.PutUint32(data[off:], uint32(v))
		}
	}

	var exports []Export
	name := func(s string) string {
		if e.Decorate {
			return "_" + s
		}
		return s
	}

	var code []byte
	if e.APINo != 0 {
		layout, err := zend.Classify(e.APINo)
		if err != nil {
			layout = zend.Layout20050617
		}
		binary.LittleEndian.PutUint16(data[0:], 0x100)
		binary.LittleEndian.PutUint32(data[4:], e.APINo)
		data[9] = e.ZTS
		putPtr(ModuleEntryRVA+uint32(layout.NameOffset(ptrSize)), str(e.Name))
		putPtr(ModuleEntryRVA+uint32(layout.VersionOffset(ptrSize)), str(e.Version))

		code = getter(e.Machine, base)
		exports = append(exports, Export{Name: name("get_module"), RVA: TextRVA})
	}

	if e.Zend != nil {
		for i, s := range []string{e.Zend.Name, e.Zend.Version, e.Zend.Author, e.Zend.URL, e.Zend.Copyright} {
			putPtr(ExtensionEntryRVA+uint32(i*ptrSize), str(s))
		}
		exports = append(exports, Export{Name: name("zend_extension_entry"), RVA: ExtensionEntryRVA})
	}
	if e.Marker {
		// zend_extension_version_info{zend_extension_api_no, build_id}
		binary.LittleEndian.PutUint32(data[MarkerRVA-DataRVA:], 320190902)
		exports = append(exports, Export{Name: name("extension_version_info"), RVA: MarkerRVA})
	}

	edata, dir := ExportSection(EdataRVA, "php_ext.dll", exports)
	return &Image{
		Machine:   e.Machine,
		ImageBase: base,
		Sections: []Section{
			{Name: ".text", VirtualAddress: TextRVA, VirtualSize: 0x100, Data: append(code, make([]byte, 0x100-len(code))...), Code: true},
			{Name: ".data", VirtualAddress: DataRVA, Data: data},
			edata,
		},
		Exports: dir,
	}
}

// getter is get_module compiled as "return &module_entry;".
func getter(machine uint16, base uint64) []byte {
	if machine == MachineAMD64 {
		// lea rax, [rip+disp32]; ret
		disp := uint32(ModuleEntryRVA - (TextRVA + 7))
		code := []byte{0x48, 0x8d, 0x05, 0, 0, 0, 0, 0xc3}
		binary.LittleEndian.PutUint32(code[3:], disp)
		return code
	}
	// mov eax, imm32; ret
	code := []byte{0xb8, 0, 0, 0, 0, 0xc3}
	binary.LittleEndian.PutUint32(code[1:], uint32(base+ModuleEntryRVA))
	return code
}

// CorruptExports is a DLL whose export directory lies past the raw data of
// its section.
func CorruptExports(machine uint16) *Image {
	im := &Image{
		Machine: machine,
		Sections: []Section{
			{Name: ".edata", VirtualAddress: 0x1000, VirtualSize: 0x1000, Data: make([]byte, 0x10), RawSize: 0x10},
		},
		Exports: DataDirectory{VirtualAddress: 0x1800, Size: 0x28},
	}
	im.ImageBase = Extension{Machine: machine}.ImageBase()
	return im
}
