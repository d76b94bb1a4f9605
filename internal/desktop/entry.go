package desktop

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chess10kp/dmenud/internal/logging"
	"github.com/chess10kp/dmenud/internal/xdg"
)

// Entry is a parsed desktop-entry file. Identity is the ID/Root pair;
// two entries with the same ID from different roots are the same
// application and collapse in the catalog.
type Entry struct {
	ID   string // path relative to Root, slash-normalized
	Root string
	Rank int
	Path string // absolute path of the source file

	Name        string // localized
	GenericName string
	Comment     string
	Exec        string
	Icon        string
	Terminal    bool
	NoDisplay   bool
	Hidden      bool
	OnlyShowIn  []string
	NotShowIn   []string
	WorkDir     string
	TryExec     string

	// Launchable is false when TryExec is set but does not resolve to an
	// executable. Such entries stay in the catalog but are never shown.
	Launchable bool
}

// Visible reports whether the entry should be offered to the user given
// the current desktop environments.
func (e *Entry) Visible(desktopEnvs []string) bool {
	if e.NoDisplay || e.Hidden || !e.Launchable {
		return false
	}
	if len(e.OnlyShowIn) > 0 && !intersects(e.OnlyShowIn, desktopEnvs) {
		return false
	}
	if intersects(e.NotShowIn, desktopEnvs) {
		return false
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// FieldError reports a malformed or missing field in a desktop file.
type FieldError struct {
	File   string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %s: %s", e.File, e.Field, e.Reason)
}

// Parser turns desktop files into Entry records. It carries the locale
// suffix order and a small cache of TryExec lookups, which memoizes the
// PATH scans within one catalog pass. The catalog flushes the cache
// before incremental updates so a binary installed after startup is
// noticed on the next re-parse.
type Parser struct {
	locale    xdg.LocaleSuffixes
	quirks    Quirks
	logger    *logging.Logger
	execCache *lru.Cache[string, bool]
}

// NewParser creates a Parser for the given locale and Exec quirks.
func NewParser(locale xdg.LocaleSuffixes, quirks Quirks, logger *logging.Logger) *Parser {
	cache, _ := lru.New[string, bool](256)
	return &Parser{
		locale:    locale,
		quirks:    quirks,
		logger:    logger,
		execCache: cache,
	}
}

// localized tracks the best locale match seen so far for one key.
type localized struct {
	value string
	rank  int
	set   bool
}

func (l *localized) offer(value string, rank int) {
	// Later lines overwrite earlier ones of the same rank.
	if !l.set || rank <= l.rank {
		l.value = value
		l.rank = rank
		l.set = true
	}
}

// ParseFile parses one desktop file. The returned error is a *FieldError
// for malformed or missing fields and an *InvalidExecError when the Exec
// field fails grammar validation.
func (p *Parser) ParseFile(path, id, root string, rank int) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open desktop file: %w", err)
	}
	defer f.Close()

	entry := &Entry{
		ID:         id,
		Root:       root,
		Rank:       rank,
		Path:       path,
		Launchable: true,
	}

	// Rank used for unsuffixed keys; any real suffix match beats it.
	fallbackRank := len(p.locale.Suffixes())

	var name, generic, comment localized
	var typ string
	inSection := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inSection = line == "[Desktop Entry]"
			continue
		}
		if !inSection {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		key, suffix, suffixed := splitKeySuffix(key)
		keyRank := fallbackRank
		if suffixed {
			r, ok := p.locale.Rank(suffix)
			if !ok {
				continue // locale we don't care about
			}
			keyRank = r
		}

		switch key {
		case "Type":
			typ = value
		case "Name":
			name.offer(decodeString(value), keyRank)
		case "GenericName":
			generic.offer(decodeString(value), keyRank)
		case "Comment":
			comment.offer(decodeString(value), keyRank)
		case "Exec":
			entry.Exec = decodeString(value)
		case "Icon":
			entry.Icon = decodeString(value)
		case "Path":
			entry.WorkDir = decodeString(value)
		case "TryExec":
			entry.TryExec = decodeString(value)
		case "Terminal":
			b, err := decodeBool(value)
			if err != nil {
				return nil, &FieldError{File: path, Field: "Terminal", Reason: err.Error()}
			}
			entry.Terminal = b
		case "NoDisplay":
			b, err := decodeBool(value)
			if err != nil {
				return nil, &FieldError{File: path, Field: "NoDisplay", Reason: err.Error()}
			}
			entry.NoDisplay = b
		case "Hidden":
			b, err := decodeBool(value)
			if err != nil {
				return nil, &FieldError{File: path, Field: "Hidden", Reason: err.Error()}
			}
			entry.Hidden = b
		case "OnlyShowIn":
			entry.OnlyShowIn = decodeList(value)
		case "NotShowIn":
			entry.NotShowIn = decodeList(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read desktop file %s: %w", path, err)
	}

	if typ == "" {
		return nil, &FieldError{File: path, Field: "Type", Reason: "missing"}
	}
	if typ != "Application" {
		return nil, &FieldError{File: path, Field: "Type", Reason: "not an Application"}
	}
	if !name.set || name.value == "" {
		return nil, &FieldError{File: path, Field: "Name", Reason: "missing"}
	}
	if entry.Exec == "" {
		return nil, &FieldError{File: path, Field: "Exec", Reason: "missing"}
	}

	entry.Name = name.value
	entry.GenericName = generic.value
	entry.Comment = comment.value

	if err := ValidateExec(entry.Exec, p.quirks); err != nil {
		return nil, err
	}

	if entry.TryExec != "" && !p.tryExecOK(entry.TryExec) {
		p.logger.Debugf("TryExec %q of %s did not resolve, entry is not launchable", entry.TryExec, path)
		entry.Launchable = false
	}

	return entry, nil
}

// FlushLookupCache drops all memoized TryExec lookups.
func (p *Parser) FlushLookupCache() {
	p.execCache.Purge()
}

// splitKeySuffix splits Key[suffix] into its parts.
func splitKeySuffix(key string) (string, string, bool) {
	open := strings.IndexByte(key, '[')
	if open < 0 || !strings.HasSuffix(key, "]") {
		return key, "", false
	}
	return key[:open], key[open+1 : len(key)-1], true
}

// decodeString applies the desktop-entry escape rules. Unknown escapes
// pass through untouched so that quirky Exec values survive for the
// grammar layer to judge.
func decodeString(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func decodeBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", s)
}

// decodeList splits a semicolon-separated value. \; is a literal
// semicolon, \\ a literal backslash; a trailing empty element after a
// final ; is dropped.
func decodeList(s string) []string {
	var items []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i < len(s)-1:
			i++
			switch s[i] {
			case ';':
				cur.WriteByte(';')
			case '\\':
				cur.WriteByte('\\')
			case 's':
				cur.WriteByte(' ')
			case 'n':
				cur.WriteByte('\n')
			case 't':
				cur.WriteByte('\t')
			case 'r':
				cur.WriteByte('\r')
			default:
				cur.WriteByte('\\')
				cur.WriteByte(s[i])
			}
		case c == ';':
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		items = append(items, cur.String())
	}
	return items
}

// tryExecOK reports whether a TryExec value resolves to an executable.
// Absolute paths must be executable regular files; relative names are
// searched on $PATH.
func (p *Parser) tryExecOK(tryExec string) bool {
	if ok, hit := p.execCache.Get(tryExec); hit {
		return ok
	}
	var ok bool
	if filepath.IsAbs(tryExec) {
		info, err := os.Stat(tryExec)
		ok = err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
	} else {
		_, err := exec.LookPath(tryExec)
		ok = err == nil
	}
	p.execCache.Add(tryExec, ok)
	return ok
}
