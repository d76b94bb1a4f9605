package apps

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/chess10kp/dmenud/internal/desktop"
	"github.com/chess10kp/dmenud/internal/logging"
	"github.com/chess10kp/dmenud/internal/xdg"
)

// source is one root known to contain a parseable file for an identity.
type source struct {
	root string
	rank int
}

// record holds the winning entry for an identity plus every known
// source, so a removal in a low-ranked root can promote a shadow without
// a full rescan.
type record struct {
	entry   *desktop.Entry
	sources []source // ascending rank
}

func (r *record) addSource(root string, rank int) {
	for _, s := range r.sources {
		if s.root == root {
			return
		}
	}
	r.sources = append(r.sources, source{root: root, rank: rank})
	sort.Slice(r.sources, func(i, j int) bool { return r.sources[i].rank < r.sources[j].rank })
}

func (r *record) removeSource(root string) {
	for i, s := range r.sources {
		if s.root == root {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			return
		}
	}
}

// Manager owns the application catalog. Identities are relative desktop
// file paths; across roots the lowest rank wins.
type Manager struct {
	parser          *desktop.Parser
	logger          *logging.Logger
	desktopEnvs     []string
	includeGeneric  bool
	caseInsensitive bool
	formatter       Formatter

	entries map[string]*record
}

// NewManager creates an empty catalog.
func NewManager(parser *desktop.Parser, formatter Formatter, desktopEnvs []string,
	includeGeneric, caseInsensitive bool, logger *logging.Logger) *Manager {
	return &Manager{
		parser:          parser,
		logger:          logger,
		desktopEnvs:     desktopEnvs,
		includeGeneric:  includeGeneric,
		caseInsensitive: caseInsensitive,
		formatter:       formatter,
		entries:         make(map[string]*record),
	}
}

// Ingest scans the ranked search roots and fills the catalog. It returns
// the number of desktop files collected.
func (m *Manager) Ingest(roots []string) int {
	m.parser.FlushLookupCache()
	total := 0
	for rank, root := range roots {
		files, err := xdg.FindDesktopFiles(root)
		if err != nil {
			m.logger.Warnf("Failed to scan %s: %v", root, err)
			continue
		}
		total += len(files)
		for _, f := range files {
			m.logger.Debugf("Found desktop file %s", f.Path)
			entry, err := m.parser.ParseFile(f.Path, f.ID, root, rank)
			if err != nil {
				m.logger.Warnf("Skipping %s: %v", f.Path, err)
				continue
			}
			m.install(entry)
		}
	}
	return total
}

func (m *Manager) install(e *desktop.Entry) {
	rec, ok := m.entries[e.ID]
	if !ok {
		rec = &record{}
		m.entries[e.ID] = rec
	}
	rec.addSource(e.Root, e.Rank)
	if rec.entry == nil || e.Rank <= rec.entry.Rank {
		rec.entry = e
	}
}

// Add re-parses a file after a filesystem change. The entry replaces the
// current one unless a strictly lower-ranked root already provides this
// identity. A file that no longer parses is treated as gone from that
// root.
func (m *Manager) Add(id, root string, rank int) {
	// The TryExec verdict may have changed since the last pass.
	m.parser.FlushLookupCache()

	rec, ok := m.entries[id]
	if ok && rec.entry != nil && rec.entry.Rank < rank {
		// Shadowed; remember the source for later promotion.
		path := filepath.Join(root, id)
		if _, err := m.parser.ParseFile(path, id, root, rank); err == nil {
			rec.addSource(root, rank)
		}
		return
	}

	path := filepath.Join(root, id)
	entry, err := m.parser.ParseFile(path, id, root, rank)
	if err != nil {
		m.logger.Warnf("Skipping %s: %v", path, err)
		m.Remove(id, root)
		return
	}
	m.install(entry)
}

// Remove drops an identity's binding to a root. If that root provided the
// winning entry, the lowest-ranked shadow is promoted; with no shadows
// left, the identity disappears.
func (m *Manager) Remove(id, root string) {
	rec, ok := m.entries[id]
	if !ok {
		return
	}
	rec.removeSource(root)
	if rec.entry == nil || rec.entry.Root != root {
		if len(rec.sources) == 0 && rec.entry == nil {
			delete(m.entries, id)
		}
		return
	}

	// The winner is gone; promote the best remaining source.
	m.parser.FlushLookupCache()
	rec.entry = nil
	for _, s := range rec.sources {
		path := filepath.Join(s.root, id)
		entry, err := m.parser.ParseFile(path, id, s.root, s.rank)
		if err != nil {
			m.logger.Warnf("Skipping %s: %v", path, err)
			continue
		}
		rec.entry = entry
		break
	}
	if rec.entry == nil {
		delete(m.entries, id)
	}
}

// Count returns the number of applications in the catalog.
func (m *Manager) Count() int {
	n := 0
	for _, rec := range m.entries {
		if rec.entry != nil {
			n++
		}
	}
	return n
}

// Lookup returns the winning entry for an identity.
func (m *Manager) Lookup(id string) (*desktop.Entry, bool) {
	rec, ok := m.entries[id]
	if !ok || rec.entry == nil {
		return nil, false
	}
	return rec.entry, true
}

// NameMap rebuilds the display-key mapping from the visible catalog
// entries. It is a pure function of the catalog state.
func (m *Manager) NameMap() *NameMap {
	nm := newNameMap(m.caseInsensitive)

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := m.entries[id]
		if rec.entry == nil || !rec.entry.Visible(m.desktopEnvs) {
			continue
		}
		key := m.formatter(rec.entry, m.includeGeneric)
		if !nm.insert(key, rec.entry) {
			m.logger.Warnf("Display name collision on %q: keeping the first entry, ignoring %s",
				key, rec.entry.Path)
		}
	}
	return nm
}

// VisibleExecIndex maps Exec templates of visible entries to their
// display keys. Used when converting a v0 history file.
func (m *Manager) VisibleExecIndex() map[string]string {
	nm := m.NameMap()
	index := make(map[string]string)
	for _, key := range nm.Keys() {
		e, _ := nm.Lookup(key)
		if _, dup := index[e.Exec]; !dup {
			index[e.Exec] = key
		}
	}
	return index
}

// CheckConsistency verifies the catalog invariants. It is only invoked
// when debug logging is enabled; a failure is fatal.
func (m *Manager) CheckConsistency() error {
	for id, rec := range m.entries {
		if rec.entry == nil {
			return fmt.Errorf("catalog record %q has no winning entry", id)
		}
		if rec.entry.ID != id {
			return fmt.Errorf("catalog record %q holds entry with identity %q", id, rec.entry.ID)
		}
		found := false
		minRank := -1
		for i, s := range rec.sources {
			if i == 0 || s.rank < minRank {
				minRank = s.rank
			}
			if s.root == rec.entry.Root && s.rank == rec.entry.Rank {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("winning entry of %q is not among its sources", id)
		}
		if rec.entry.Rank != minRank {
			return fmt.Errorf("winning entry of %q has rank %d, minimum source rank is %d",
				id, rec.entry.Rank, minRank)
		}
	}

	seen := make(map[string]string)
	nm := newNameMap(m.caseInsensitive)
	for id, rec := range m.entries {
		if !rec.entry.Visible(m.desktopEnvs) {
			continue
		}
		key := nm.Fold(m.formatter(rec.entry, m.includeGeneric))
		if other, dup := seen[key]; dup {
			m.logger.Debugf("Display key %q shared by %s and %s", key, other, id)
		}
		seen[key] = id
	}
	return nil
}
