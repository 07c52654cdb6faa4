package backup

import (
	"path/filepath"
	"sort"

	"autobackup/internal/model"
)

// ExtensionSet is an allow-list of file extensions, matched case-insensitively.
// It is built once from configuration.
type ExtensionSet struct {
	exts map[string]model.FileKind
}

// NewExtensionSet builds a set from extensions given with or without the
// leading dot, in any case. Empty entries are ignored.
func NewExtensionSet(exts []string) ExtensionSet {
	set := ExtensionSet{exts: make(map[string]model.FileKind, len(exts))}
	for _, e := range exts {
		n := model.NormalizeExtension(e)
		if n == "" {
			continue
		}
		set.exts[n] = model.KindForExtension(n)
	}
	return set
}

// Allows reports whether the extension of name is in the set.
func (s ExtensionSet) Allows(name string) bool {
	_, ok := s.exts[model.NormalizeExtension(filepath.Ext(name))]
	return ok
}

// Len returns the number of extensions in the set.
func (s ExtensionSet) Len() int {
	return len(s.exts)
}

// Extensions returns the normalised extensions in sorted order.
func (s ExtensionSet) Extensions() []string {
	out := make([]string, 0, len(s.exts))
	for e := range s.exts {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
