// Package cmdline builds correctly-quoted command lines for launching
// applications through a POSIX shell, a wrapper command, a terminal
// emulator or a window-manager IPC channel.
package cmdline

import "strings"

const defaultShell = "/bin/sh"

// QuoteArg quotes a string with single quotes so that any POSIX shell
// evaluates it back to the original bytes. An embedded quote closes the
// string, appends an escaped quote and reopens it; a trailing quote is
// encoded as an escaped quote with no reopening.
func QuoteArg(s string) string {
	var b strings.Builder
	// Most arguments contain no quote at all; wrapping in '' is enough.
	b.Grow(len(s) + 2)

	b.WriteByte('\'')
	for {
		where := strings.IndexByte(s, '\'')
		if where < 0 {
			b.WriteString(s)
			b.WriteByte('\'')
			return b.String()
		}
		if where == len(s)-1 {
			b.WriteString(s[:where])
			b.WriteString(`'\'`)
			return b.String()
		}
		b.WriteString(s[:where])
		b.WriteString(`'\''`)
		s = s[where+1:]
	}
}

// ArgvToString joins quoted argv elements into a single shell-ready
// command string.
func ArgvToString(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(QuoteArg(argv[0]))
	for _, arg := range argv[1:] {
		b.WriteByte(' ')
		b.WriteString(QuoteArg(arg))
	}
	return b.String()
}

// WrapInShell passes a command string through /bin/sh.
func WrapInShell(cmdstring string) []string {
	return []string{defaultShell, "-c", cmdstring}
}

// WrapInWrapper prefixes argv with a user-supplied wrapper command. The
// wrapper string is re-evaluated by the inner shell, so multi-word
// wrappers work.
func WrapInWrapper(argv []string, wrapper string) []string {
	result := []string{defaultShell, "-c", `wrap="$1"; shift; $wrap "$@"`, defaultShell, wrapper}
	return append(result, argv...)
}

// Request describes one launch for Assemble.
type Request struct {
	Argv     []string // expanded Exec argv; nil for a custom command
	Raw      string   // the raw user input for a custom command
	Custom   bool
	Terminal bool // run inside the terminal emulator
	Shell    string
	Term     string
	Wrapper  string
}

func (r Request) shell() string {
	if r.Shell == "" {
		return defaultShell
	}
	return r.Shell
}

// CommandString returns the single-string form of the command. Desktop
// entries get an `exec ` prefix so the launching shell replaces itself;
// custom commands may contain arbitrary shell syntax and are passed
// through untouched.
func (r Request) CommandString() string {
	if r.Custom {
		return r.Raw
	}
	return "exec " + ArgvToString(r.Argv)
}

// Assemble produces the final execution argv.
func (r Request) Assemble() []string {
	var argv []string
	if r.Wrapper != "" {
		inner := r.Argv
		if r.Custom {
			inner = WrapInShell(r.Raw)
		}
		argv = WrapInWrapper(inner, r.Wrapper)
	} else {
		argv = []string{r.shell(), "-c", r.CommandString()}
	}
	if r.Terminal {
		argv = append([]string{r.Term, "-e"}, argv...)
	}
	return argv
}

// IPCPayload is the command string sent over the window-manager IPC
// socket instead of being executed locally. A wrapper prefixes the
// quoted command so the shell the window manager spawns re-evaluates
// it, the same effect the wrapper has on the local path.
func (r Request) IPCPayload() string {
	cmd := r.CommandString()
	if r.Wrapper != "" {
		inner := r.Raw
		if !r.Custom {
			inner = ArgvToString(r.Argv)
		}
		cmd = r.Wrapper + " " + QuoteArg(inner)
		if !r.Custom {
			cmd = "exec " + cmd
		}
	}
	if r.Terminal {
		return r.Term + " -e " + r.shell() + " -c " + QuoteArg(cmd)
	}
	return cmd
}
