package zend

import "strings"

// Kind is the set of extension types a module was recognized as.
type Kind uint8

const (
	KindPHP Kind = 1 << iota
	KindZend
)

func (k Kind) Has(other Kind) bool { return k&other == other }

func (k Kind) String() string {
	var parts []string
	if k.Has(KindPHP) {
		parts = append(parts, "Php")
	}
	if k.Has(KindZend) {
		parts = append(parts, "Zend")
	}
	return strings.Join(parts, ",")
}

// Record accumulates what the PHP and Zend checks learned about one module.
// Strings are unset while empty and are only ever set once.
type Record struct {
	APINo      uint32
	ThreadSafe *bool
	Kind       Kind

	Name    string
	Version string

	// zend_extension_entry only
	Author    string
	URL       string
	Copyright string

	// Err is fatal: nothing else is read from module memory once it is set.
	Err error
}

func setOnce(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func (r *Record) setName(v string)    { setOnce(&r.Name, v) }
func (r *Record) setVersion(v string) { setOnce(&r.Version, v) }

func (r *Record) fail(err error) error {
	if r.Err == nil {
		r.Err = err
	}
	return err
}
