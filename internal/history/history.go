// Package history persists the frequency ranking of chosen display
// names. The file is a line-oriented text format: a version marker
// followed by "<count>\t<name>" lines sorted by descending count, ties
// broken by most recent increment.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chess10kp/dmenud/internal/logging"
)

const v1Marker = "j4dd history v1"

// ErrVersion0 signals a history file written by the legacy format
// without a version marker. Callers convert it with ConvertV0.
var ErrVersion0 = errors.New("history file uses the v0 format")

// Entry is one ranked display name.
type Entry struct {
	Count int
	Name  string
}

// Manager holds the in-memory ranking and its backing file.
type Manager struct {
	path    string
	entries []Entry // descending count; equal counts most-recent first
	logger  *logging.Logger
}

// Open loads a v1 history file. A missing file yields an empty history.
// ErrVersion0 is returned when the file predates the version marker.
func Open(path string, logger *logging.Logger) (*Manager, error) {
	m := &Manager{path: path, logger: logger}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read history file: %w", err)
		}
		return m, nil // empty file
	}
	if scanner.Text() != v1Marker {
		return nil, ErrVersion0
	}

	entries, err := readEntries(scanner, path)
	if err != nil {
		return nil, err
	}
	m.entries = entries
	return m, nil
}

func readEntries(scanner *bufio.Scanner, path string) ([]Entry, error) {
	var entries []Entry
	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		count, name, found := strings.Cut(text, "\t")
		if !found {
			return nil, fmt.Errorf("malformed history entry at %s:%d", path, line)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid history count at %s:%d", path, line)
		}
		entries = append(entries, Entry{Count: n, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return entries, nil
}

// View yields the entries in rank order.
func (m *Manager) View() []Entry {
	return m.entries
}

// Increment bumps a display name's count, creating it at one, and moves
// it ahead of entries with an equal count. The file is rewritten
// atomically.
func (m *Manager) Increment(name string) error {
	count := 1
	for i, e := range m.entries {
		if e.Name == name {
			count = e.Count + 1
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}

	// Most recent increment wins within an equal-count run.
	at := len(m.entries)
	for i, e := range m.entries {
		if e.Count <= count {
			at = i
			break
		}
	}
	m.entries = append(m.entries, Entry{})
	copy(m.entries[at+1:], m.entries[at:])
	m.entries[at] = Entry{Count: count, Name: name}

	return m.save()
}

// save writes the file next to its target and renames it into place, so
// a crash never leaves a torn history.
func (m *Manager) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".history-*")
	if err != nil {
		return fmt.Errorf("failed to create history temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprintln(w, v1Marker)
	for _, e := range m.entries {
		if e.Count <= 0 {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\n", e.Count, e.Name)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// ConvertV0 reads a legacy history file whose entries referenced raw
// commands, translates them to current display keys through execIndex
// (Exec template → display key), drops what no longer matches and writes
// the result back in the v1 format.
func ConvertV0(path string, execIndex map[string]string, logger *logging.Logger) (*Manager, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	raw, err := readEntries(bufio.NewScanner(f), path)
	if err != nil {
		return nil, err
	}

	m := &Manager{path: path, logger: logger}
	for _, e := range raw {
		name, ok := execIndex[e.Name]
		if !ok {
			logger.Warnf("Dropping history entry %q: no matching application", e.Name)
			continue
		}
		m.entries = append(m.entries, Entry{Count: e.Count, Name: name})
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}
