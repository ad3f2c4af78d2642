package zend

import (
	"fmt"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/memory"
)

// ReadHeader reads the size and api number at the start of a module entry.
func ReadHeader(r memory.Reader, base uint64) (Header, error) {
	if base == 0 {
		return Header{}, fmt.Errorf("module entry is a null pointer")
	}
	size, err := memory.ReadU16(r, base+sizeOffset)
	if err != nil {
		return Header{}, err
	}
	apiNo, err := memory.ReadU32(r, base+apiOffset)
	if err != nil {
		return Header{}, err
	}
	return Header{DeclaredSize: size, APINo: apiNo}, nil
}

// ReadModuleEntry classifies the zend_module_entry at base and merges its
// metadata into rec. A fatal error is stored in rec.Err and returned; the
// layout is not trusted past the point of failure, so nothing is read after.
func ReadModuleEntry(r memory.Reader, base uint64, rec *Record) (*Layout, error) {
	if rec.Err != nil {
		return nil, rec.Err
	}

	hdr, err := ReadHeader(r, base)
	if err != nil {
		return nil, rec.fail(errors.Wrap(errors.ErrUnreadable, err))
	}

	layout, err := Classify(hdr.APINo)
	if err != nil {
		return nil, rec.fail(err)
	}

	zts, err := memory.ReadU8(r, base+layout.ZTSOffset())
	if err != nil {
		return layout, rec.fail(errors.Wrap(errors.ErrUnreadable, err))
	}
	threadSafe, err := layout.ThreadSafe(zts)
	if err != nil {
		return layout, rec.fail(err)
	}

	if rec.APINo == 0 {
		rec.APINo = hdr.APINo
	}
	if rec.ThreadSafe == nil {
		rec.ThreadSafe = &threadSafe
	}
	rec.Kind |= KindPHP

	ptrSize := r.PointerSize()
	name, err := memory.ReadStringPointer(r, base+layout.NameOffset(ptrSize))
	if err != nil {
		return layout, rec.fail(errors.Wrap(errors.ErrUnreadable, fmt.Errorf("name: %w", err)))
	}
	version, err := memory.ReadStringPointer(r, base+layout.VersionOffset(ptrSize))
	if err != nil {
		return layout, rec.fail(errors.Wrap(errors.ErrUnreadable, fmt.Errorf("version: %w", err)))
	}
	rec.setName(name)
	rec.setVersion(version)

	return layout, nil
}
