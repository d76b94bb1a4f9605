package apps

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/chess10kp/dmenud/internal/desktop"
	"github.com/chess10kp/dmenud/internal/logging"
	"github.com/chess10kp/dmenud/internal/xdg"
)

var testLogger = logging.New(logging.LevelError)

func newTestManager(desktopEnvs []string, caseInsensitive bool) *Manager {
	parser := desktop.NewParser(xdg.NewLocaleSuffixes(""), desktop.Quirks{}, testLogger)
	return NewManager(parser, FormatName, desktopEnvs, true, caseInsensitive, testLogger)
}

func writeApp(t *testing.T, root, id, name string, extra ...string) {
	t.Helper()
	content := fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\n", name, name)
	for _, line := range extra {
		content += line + "\n"
	}
	path := filepath.Join(root, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directories for %s: %v", id, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", id, err)
	}
}

func TestIngestDeduplicatesAcrossRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeApp(t, rootA, "foo.desktop", "A")
	writeApp(t, rootB, "foo.desktop", "B")
	writeApp(t, rootB, "bar.desktop", "Bar")

	m := newTestManager(nil, false)
	files := m.Ingest([]string{rootA, rootB})

	if files != 3 {
		t.Errorf("Expected 3 collected files, got %d", files)
	}
	if m.Count() != 2 {
		t.Fatalf("Expected 2 catalog entries, got %d", m.Count())
	}
	e, ok := m.Lookup("foo.desktop")
	if !ok || e.Name != "A" {
		t.Errorf("Expected the rank-0 root to win for foo.desktop, got %+v", e)
	}
}

func TestRemovePromotesShadow(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeApp(t, rootA, "foo.desktop", "A")
	writeApp(t, rootB, "foo.desktop", "B")

	m := newTestManager(nil, false)
	m.Ingest([]string{rootA, rootB})

	m.Remove("foo.desktop", rootA)
	e, ok := m.Lookup("foo.desktop")
	if !ok || e.Name != "B" {
		t.Fatalf("Expected the shadow entry to be promoted, got %+v (ok=%v)", e, ok)
	}

	m.Add("foo.desktop", rootA, 0)
	e, ok = m.Lookup("foo.desktop")
	if !ok || e.Name != "A" {
		t.Fatalf("Expected the rank-0 entry to win again, got %+v (ok=%v)", e, ok)
	}

	if err := m.CheckConsistency(); err != nil {
		t.Errorf("Consistency check failed: %v", err)
	}
}

func TestRemoveLastSourceDropsEntry(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "foo.desktop", "Foo")

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	m.Remove("foo.desktop", root)
	if _, ok := m.Lookup("foo.desktop"); ok {
		t.Error("Expected the entry to disappear with its last source")
	}
	if m.Count() != 0 {
		t.Errorf("Expected an empty catalog, got %d entries", m.Count())
	}
}

func TestAddIgnoresShadowedRoot(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeApp(t, rootA, "foo.desktop", "A")
	writeApp(t, rootB, "foo.desktop", "B")

	m := newTestManager(nil, false)
	m.Ingest([]string{rootA, rootB})

	// A change in the shadowed root must not replace the winner.
	writeApp(t, rootB, "foo.desktop", "B2")
	m.Add("foo.desktop", rootB, 1)
	e, _ := m.Lookup("foo.desktop")
	if e.Name != "A" {
		t.Errorf("Expected the rank-0 entry to stay, got %q", e.Name)
	}
}

func TestAddReplacesModifiedWinner(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "foo.desktop", "Old")

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	writeApp(t, root, "foo.desktop", "New")
	m.Add("foo.desktop", root, 0)
	e, _ := m.Lookup("foo.desktop")
	if e.Name != "New" {
		t.Errorf("Expected the modified entry to replace the old one, got %q", e.Name)
	}
}

func TestAddOfBrokenFileRemoves(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "foo.desktop", "Foo")

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	// The file turns invalid; incremental must match a fresh ingest.
	path := filepath.Join(root, "foo.desktop")
	if err := os.WriteFile(path, []byte("[Desktop Entry]\nType=Application\n"), 0644); err != nil {
		t.Fatalf("Failed to overwrite desktop file: %v", err)
	}
	m.Add("foo.desktop", root, 0)
	if _, ok := m.Lookup("foo.desktop"); ok {
		t.Error("Expected the broken entry to leave the catalog")
	}
}

func TestAddRechecksTryExec(t *testing.T) {
	root := t.TempDir()
	binary := filepath.Join(root, "tool")
	writeApp(t, root, "tool.desktop", "Tool", "TryExec="+binary)

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	if m.NameMap().Len() != 0 {
		t.Fatal("Expected the entry to be hidden while its TryExec binary is missing")
	}

	// The binary gets installed while the daemon is running; the next
	// change event must make the entry launchable again.
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("Failed to create binary: %v", err)
	}
	m.Add("tool.desktop", root, 0)

	nm := m.NameMap()
	if nm.Len() != 1 {
		t.Fatalf("Expected the entry to become visible, got %v", nm.Keys())
	}
	if _, ok := nm.Lookup("Tool"); !ok {
		t.Error("Expected Tool in the mapping")
	}
}

func TestNameMapFiltersInvisible(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "shown.desktop", "Shown")
	writeApp(t, root, "hidden.desktop", "Hidden", "NoDisplay=true")
	writeApp(t, root, "kde.desktop", "KDEOnly", "OnlyShowIn=KDE;")

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	nm := m.NameMap()
	if nm.Len() != 1 {
		t.Fatalf("Expected 1 visible entry, got %d: %v", nm.Len(), nm.Keys())
	}
	if _, ok := nm.Lookup("Shown"); !ok {
		t.Error("Expected Shown in the mapping")
	}

	kde := newTestManager([]string{"KDE"}, false)
	kde.Ingest([]string{root})
	if kde.NameMap().Len() != 2 {
		t.Errorf("Expected the KDE-only entry to appear under KDE, got %v", kde.NameMap().Keys())
	}
}

func TestNameMapCollisionFirstWins(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "a.desktop", "Same")
	writeApp(t, root, "b.desktop", "Same")

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	nm := m.NameMap()
	if nm.Len() != 1 {
		t.Fatalf("Expected the collision to collapse to one key, got %d", nm.Len())
	}
	e, _ := nm.Lookup("Same")
	if e.ID != "a.desktop" {
		t.Errorf("Expected the first inserted identity to win, got %s", e.ID)
	}
}

func TestNameMapCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "firefox.desktop", "Firefox")

	m := newTestManager(nil, true)
	m.Ingest([]string{root})

	nm := m.NameMap()
	if _, ok := nm.Lookup("firefox"); !ok {
		t.Error("Expected a case-insensitive lookup to match")
	}
	if _, ok := nm.Lookup("FIREFOX"); !ok {
		t.Error("Expected a case-insensitive lookup to match")
	}

	sensitive := newTestManager(nil, false)
	sensitive.Ingest([]string{root})
	if _, ok := sensitive.NameMap().Lookup("firefox"); ok {
		t.Error("Expected a case-sensitive lookup to miss")
	}
}

func TestNameMapOrdering(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "c.desktop", "cherry")
	writeApp(t, root, "a.desktop", "Apple")
	writeApp(t, root, "b.desktop", "banana")

	m := newTestManager(nil, true)
	m.Ingest([]string{root})

	keys := m.NameMap().Keys()
	want := []string{"Apple", "banana", "cherry"}
	if len(keys) != 3 {
		t.Fatalf("Expected 3 keys, got %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestFormatters(t *testing.T) {
	e := &desktop.Entry{
		Name:        "Firefox",
		GenericName: "Web Browser",
		Exec:        "/usr/lib/firefox/firefox %u",
	}

	if got := FormatName(e, false); got != "Firefox" {
		t.Errorf("FormatName: got %q", got)
	}
	if got := FormatName(e, true); got != "Firefox (Web Browser)" {
		t.Errorf("FormatName with generic: got %q", got)
	}
	if got := FormatNameBinary(e, false); got != "Firefox (/usr/lib/firefox/firefox)" {
		t.Errorf("FormatNameBinary: got %q", got)
	}
	if got := FormatNameBaseBinary(e, false); got != "Firefox (firefox)" {
		t.Errorf("FormatNameBaseBinary: got %q", got)
	}

	// A generic name equal to the name is noise and is skipped.
	same := &desktop.Entry{Name: "App", GenericName: "App", Exec: "app"}
	if got := FormatName(same, true); got != "App" {
		t.Errorf("Expected the duplicate generic name to be skipped, got %q", got)
	}
}

func TestVisibleExecIndex(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "firefox.desktop", "Firefox")

	m := newTestManager(nil, false)
	m.Ingest([]string{root})

	index := m.VisibleExecIndex()
	if key, ok := index["Firefox"]; !ok || key != "Firefox" {
		t.Errorf("Unexpected exec index: %v", index)
	}
}
