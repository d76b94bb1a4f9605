package desktop

import (
	"fmt"
	"strings"

	"github.com/chess10kp/dmenud/internal/logging"
)

// Quirks relaxes Exec parsing for desktop files that violate the
// Desktop Entry Specification in ways common in the wild. See the
// --desktop-file-quirks flag.
type Quirks struct {
	// ExtraWineEscaping accepts the invalid escape sequences Wine writes
	// into its generated desktop files (unquoted backslashes, escaped
	// spaces, backslash followed by an arbitrary character).
	ExtraWineEscaping bool
	// MultipleSpaces logs a warning (once per file) when arguments are
	// separated by runs of spaces. Such runs collapse into a single
	// separator whether or not it is set.
	MultipleSpaces bool
}

// ParseQuirks converts a --desktop-file-quirks argument.
func ParseQuirks(s string) (Quirks, error) {
	switch s {
	case "none":
		return Quirks{}, nil
	case "wine":
		return Quirks{ExtraWineEscaping: true}, nil
	case "spaces":
		return Quirks{MultipleSpaces: true}, nil
	case "all", "":
		return Quirks{ExtraWineEscaping: true, MultipleSpaces: true}, nil
	}
	return Quirks{}, fmt.Errorf("invalid quirks value %q (want none, wine, spaces or all)", s)
}

// InvalidExecError reports a malformed Exec field.
type InvalidExecError struct {
	Exec   string
	Pos    int // character position, 1-based; 0 when not applicable
	Reason string
}

func (e *InvalidExecError) Error() string {
	if e.Pos > 0 {
		return fmt.Sprintf("invalid Exec field at character %d: %s", e.Pos, e.Reason)
	}
	return "invalid Exec field: " + e.Reason
}

func isQuoteEscapable(c byte) bool {
	return c == '"' || c == '`' || c == '$' || c == '\\'
}

// ValidateExec checks the escape and quoting grammar of an Exec field
// without building tokens. A nil return means TokenizeExec will succeed,
// except for a field with no token at all (empty or only spaces), which
// passes validation and is rejected by TokenizeExec.
func ValidateExec(exec string, quirks Quirks) error {
	inQuotes := false
	for i := 0; i < len(exec); i++ {
		c := exec[i]
		if inQuotes {
			switch c {
			case '\\':
				if i == len(exec)-1 {
					return &InvalidExecError{Exec: exec, Pos: i + 1,
						Reason: "escape character at end of field, nothing to escape"}
				}
				if !isQuoteEscapable(exec[i+1]) && !quirks.ExtraWineEscaping {
					return &InvalidExecError{Exec: exec, Pos: i + 1,
						Reason: fmt.Sprintf("invalid escape sequence %q", exec[i:i+2])}
				}
				i++
			case '"':
				inQuotes = false
			}
		} else {
			switch c {
			case '"':
				inQuotes = true
			case '\\':
				if !quirks.ExtraWineEscaping {
					return &InvalidExecError{Exec: exec, Pos: i + 1,
						Reason: "unquoted escape character"}
				}
				if i == len(exec)-1 {
					return &InvalidExecError{Exec: exec, Pos: i + 1,
						Reason: "escape character at end of field, nothing to escape"}
				}
				i++
			}
		}
	}
	if inQuotes {
		return &InvalidExecError{Exec: exec, Reason: "quoted string is missing the end quote"}
	}
	return nil
}

// TokenizeExec splits an Exec field into its argument tokens, honouring
// the double-quote grammar and the enabled quirks. At most one warning
// per quirk is logged per call (i.e. per file).
func TokenizeExec(exec string, quirks Quirks, logger *logging.Logger) ([]string, error) {
	var result []string
	var cur strings.Builder

	inQuotes := false
	escaping := false
	wineWarned := false
	spaceWarned := false

	for i := 0; i < len(exec); i++ {
		c := exec[i]
		if escaping {
			escaping = false
			switch {
			case isQuoteEscapable(c):
				cur.WriteByte(c)
			case c == ' ' && quirks.ExtraWineEscaping:
				cur.WriteByte(' ')
			case quirks.ExtraWineEscaping:
				// Wine does not escape, it emits literal Windows paths.
				cur.WriteByte('\\')
				cur.WriteByte(c)
			default:
				return nil, &InvalidExecError{Exec: exec, Pos: i + 1,
					Reason: fmt.Sprintf("invalid escape sequence %q", exec[i-1:i+1])}
			}
			continue
		}
		if inQuotes {
			switch c {
			case '"':
				inQuotes = false
			case '\\':
				escaping = true
			default:
				cur.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inQuotes = true
		case ' ':
			if cur.Len() == 0 {
				if quirks.MultipleSpaces {
					if !spaceWarned {
						logger.Warnf("Exec field separates arguments with multiple spaces; " +
							"this does not conform to the Desktop Entry Specification")
						spaceWarned = true
					}
				}
				continue
			}
			result = append(result, cur.String())
			cur.Reset()
		case '\\':
			if !quirks.ExtraWineEscaping {
				return nil, &InvalidExecError{Exec: exec, Pos: i + 1,
					Reason: "unquoted escape character"}
			}
			if !wineWarned {
				logger.Warnf("Exec field uses invalid escape sequences; " +
					"this does not conform to the Desktop Entry Specification")
				wineWarned = true
			}
			escaping = true
		default:
			cur.WriteByte(c)
		}
	}

	if escaping {
		return nil, &InvalidExecError{Exec: exec, Pos: len(exec),
			Reason: "escape character at end of field, nothing to escape"}
	}
	if inQuotes {
		return nil, &InvalidExecError{Exec: exec, Reason: "quoted string is missing the end quote"}
	}
	if cur.Len() > 0 {
		result = append(result, cur.String())
	}
	if len(result) == 0 {
		return nil, &InvalidExecError{Exec: exec, Reason: "empty Exec field"}
	}
	return result, nil
}

// ExpandContext carries the substitution values for field codes.
type ExpandContext struct {
	Arg  string // user-supplied argument(s), possibly empty
	Icon string
	Name string // localized entry name
	Path string // absolute path of the source desktop file
}

// ExpandFieldCodes replaces whole-token field codes in a tokenized Exec
// argument vector. Mid-token codes are left alone, as the Desktop Entry
// Specification only defines codes standing as their own argument;
// %% becomes a literal % anywhere. The error is an *InvalidExecError when
// expansion leaves no argv[0].
func ExpandFieldCodes(tokens []string, ctx ExpandContext) ([]string, error) {
	result := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch tok {
		case "%f", "%u":
			if ctx.Arg != "" {
				result = append(result, ctx.Arg)
			}
		case "%F", "%U":
			result = append(result, strings.Fields(ctx.Arg)...)
		case "%i":
			if ctx.Icon != "" {
				result = append(result, "--icon", ctx.Icon)
			}
		case "%c":
			result = append(result, ctx.Name)
		case "%k":
			result = append(result, ctx.Path)
		case "%d", "%D", "%n", "%N", "%v", "%m":
			// deprecated, silently removed
		default:
			result = append(result, strings.ReplaceAll(tok, "%%", "%"))
		}
	}
	if len(result) == 0 {
		return nil, &InvalidExecError{Reason: "no argv[0] left after field-code expansion"}
	}
	return result, nil
}
