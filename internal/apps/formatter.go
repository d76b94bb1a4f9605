package apps

import (
	"path/filepath"
	"strings"

	"github.com/chess10kp/dmenud/internal/desktop"
)

// Formatter turns an Entry into the display key shown in the menu.
type Formatter func(e *desktop.Entry, includeGeneric bool) string

// execBinary extracts the first word of the Exec template, unquoted.
func execBinary(exec string) string {
	fields := strings.Fields(exec)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"`)
}

func withGeneric(key string, e *desktop.Entry, includeGeneric bool) string {
	if includeGeneric && e.GenericName != "" && e.GenericName != e.Name {
		return key + " (" + e.GenericName + ")"
	}
	return key
}

// FormatName is the default formatter: the localized name alone.
func FormatName(e *desktop.Entry, includeGeneric bool) string {
	return withGeneric(e.Name, e, includeGeneric)
}

// FormatNameBinary appends the Exec binary path (--display-binary).
func FormatNameBinary(e *desktop.Entry, includeGeneric bool) string {
	key := e.Name
	if bin := execBinary(e.Exec); bin != "" {
		key += " (" + bin + ")"
	}
	return withGeneric(key, e, includeGeneric)
}

// FormatNameBaseBinary appends the basename of the Exec binary
// (--display-binary-base).
func FormatNameBaseBinary(e *desktop.Entry, includeGeneric bool) string {
	key := e.Name
	if bin := execBinary(e.Exec); bin != "" {
		key += " (" + filepath.Base(bin) + ")"
	}
	return withGeneric(key, e, includeGeneric)
}
