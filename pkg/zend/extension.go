package zend

import (
	stderrors "errors"
	"fmt"

	"github.com/carved4/phpext-inspect/pkg/errors"
	"github.com/carved4/phpext-inspect/pkg/memory"
)

// ExtensionEntry mirrors zend_extension_entry, whose leading string
// pointers have kept the same order since ZEND_EXTENSION_API_NO 2.
type ExtensionEntry struct {
	Name      string
	Version   string
	Author    string
	URL       string
	Copyright string

	// Skipped collects failures reading author, URL or copyright. Those
	// fields are left empty and never fail the entry.
	Skipped error
}

// ReadExtensionEntry reads the five string pointers at addr. Only name and
// version are required.
func ReadExtensionEntry(r memory.Reader, addr uint64) (ExtensionEntry, error) {
	var entry ExtensionEntry
	ptrSize := uint64(r.PointerSize())
	field := func(i int) (string, error) {
		return memory.ReadStringPointer(r, addr+uint64(i)*ptrSize)
	}

	var err error
	if entry.Name, err = field(0); err != nil {
		return ExtensionEntry{}, fmt.Errorf("name: %w", err)
	}
	if entry.Version, err = field(1); err != nil {
		return ExtensionEntry{}, fmt.Errorf("version: %w", err)
	}

	var skipped []error
	for i, opt := range []struct {
		name string
		dst  *string
	}{
		{"author", &entry.Author},
		{"URL", &entry.URL},
		{"copyright", &entry.Copyright},
	} {
		s, err := field(2 + i)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", opt.name, err))
			continue
		}
		*opt.dst = s
	}
	entry.Skipped = stderrors.Join(skipped...)
	return entry, nil
}

// MergeExtensionEntry marks rec as a Zend extension and fills any fields
// the PHP check left unset. The entry is returned so callers can report
// skipped optional fields.
func MergeExtensionEntry(r memory.Reader, addr uint64, rec *Record) (ExtensionEntry, error) {
	if rec.Err != nil {
		return ExtensionEntry{}, rec.Err
	}
	entry, err := ReadExtensionEntry(r, addr)
	if err != nil {
		return ExtensionEntry{}, rec.fail(errors.Wrap(errors.ErrUnreadable, err))
	}
	rec.Kind |= KindZend
	rec.setName(entry.Name)
	rec.setVersion(entry.Version)
	setOnce(&rec.Author, entry.Author)
	setOnce(&rec.URL, entry.URL)
	setOnce(&rec.Copyright, entry.Copyright)
	return entry, nil
}
