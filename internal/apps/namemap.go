package apps

import (
	"sort"
	"strings"

	"github.com/chess10kp/dmenud/internal/desktop"
)

// NameMap maps display keys to catalog entries. Keys are unique; on a
// collision the first insertion wins. Comparison and ordering follow the
// configured case sensitivity.
type NameMap struct {
	caseInsensitive bool
	byKey           map[string]*desktop.Entry // keyed by folded key
	keys            []string                  // display keys, comparator order
	sorted          bool
}

func newNameMap(caseInsensitive bool) *NameMap {
	return &NameMap{
		caseInsensitive: caseInsensitive,
		byKey:           make(map[string]*desktop.Entry),
	}
}

// Fold normalizes a key under the active comparator.
func (m *NameMap) Fold(key string) string {
	if m.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

// insert adds a key; it reports false when the key already exists.
func (m *NameMap) insert(key string, e *desktop.Entry) bool {
	folded := m.Fold(key)
	if _, dup := m.byKey[folded]; dup {
		return false
	}
	m.byKey[folded] = e
	m.keys = append(m.keys, key)
	m.sorted = false
	return true
}

// Lookup resolves a display key under the active comparator.
func (m *NameMap) Lookup(key string) (*desktop.Entry, bool) {
	e, ok := m.byKey[m.Fold(key)]
	return e, ok
}

// Keys returns the display keys in the comparator's natural order.
func (m *NameMap) Keys() []string {
	if !m.sorted {
		sort.Slice(m.keys, func(i, j int) bool {
			return m.Fold(m.keys[i]) < m.Fold(m.keys[j])
		})
		m.sorted = true
	}
	return m.keys
}

// Len returns the number of mapped keys.
func (m *NameMap) Len() int {
	return len(m.byKey)
}
