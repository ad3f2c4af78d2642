package resolve

// Well-known exports of PHP and Zend extensions.
const (
	GetModule            = "get_module"
	ZendExtensionEntry   = "zend_extension_entry"
	ExtensionVersionInfo = "extension_version_info"
)

// Table answers exported symbol lookups for one module.
type Table interface {
	Lookup(name string) (uint64, bool)
}

// Exports maps exported names to absolute addresses.
type Exports map[string]uint64

func (e Exports) Lookup(name string) (uint64, bool) {
	addr, ok := e[name]
	if !ok || addr == 0 {
		return 0, false
	}
	return addr, true
}

// Candidates returns the undecorated name followed by the legacy
// leading-underscore form emitted by some 32-bit toolchains.
func Candidates(name string) []string {
	return []string{name, "_" + name}
}

// Resolve tries each name in order and returns the first hit.
func Resolve(t Table, names ...string) (uint64, string, bool) {
	for _, name := range names {
		if addr, ok := t.Lookup(name); ok {
			return addr, name, true
		}
	}
	return 0, "", false
}

// Symbol resolves name in its undecorated and decorated forms.
func Symbol(t Table, name string) (uint64, bool) {
	addr, _, ok := Resolve(t, Candidates(name)...)
	return addr, ok
}
