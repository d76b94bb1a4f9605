package cmdline

import (
	"reflect"
	"testing"
)

func TestQuoteArg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", `'plain'`},
		{"it's a test", `'it'\''s a test'`},
		{"end'", `'end'\'`},
		{"", `''`},
		{"'", `''\'`},
		{"''", `''\'''\'`},
		{"a'b'c", `'a'\''b'\''c'`},
		{"spaces and $vars `ticks`", "'spaces and $vars `ticks`'"},
	}
	for _, tc := range tests {
		if got := QuoteArg(tc.in); got != tc.want {
			t.Errorf("QuoteArg(%q): expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestArgvToString(t *testing.T) {
	if got := ArgvToString(nil); got != "" {
		t.Errorf("Expected empty string for empty argv, got %q", got)
	}
	got := ArgvToString([]string{"mpv", "--really-quiet", "a b.mp4"})
	want := `'mpv' '--really-quiet' 'a b.mp4'`
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestWrapInShell(t *testing.T) {
	got := WrapInShell("true")
	want := []string{"/bin/sh", "-c", "true"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestWrapInWrapper(t *testing.T) {
	got := WrapInWrapper([]string{"app", "--flag"}, "sudo -E")
	want := []string{
		"/bin/sh", "-c", `wrap="$1"; shift; $wrap "$@"`,
		"/bin/sh", "sudo -E", "app", "--flag",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestCommandStringExecPrefix(t *testing.T) {
	req := Request{Argv: []string{"firefox", "https://x"}, Shell: "/bin/sh"}
	got := req.CommandString()
	want := `exec 'firefox' 'https://x'`
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	// Custom commands may contain shell syntax and get no prefix.
	req = Request{Custom: true, Raw: "ls | wc -l", Shell: "/bin/sh"}
	if got := req.CommandString(); got != "ls | wc -l" {
		t.Errorf("Expected the raw command untouched, got %s", got)
	}
}

func TestAssemblePlain(t *testing.T) {
	req := Request{Argv: []string{"app"}, Shell: "/bin/bash"}
	got := req.Assemble()
	want := []string{"/bin/bash", "-c", "exec 'app'"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembleTerminal(t *testing.T) {
	req := Request{
		Argv:     []string{"htop"},
		Shell:    "/bin/sh",
		Term:     "xterm",
		Terminal: true,
	}
	got := req.Assemble()
	want := []string{"xterm", "-e", "/bin/sh", "-c", "exec 'htop'"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembleWrapper(t *testing.T) {
	req := Request{
		Argv:    []string{"app", "arg"},
		Shell:   "/bin/sh",
		Wrapper: "systemd-run --user",
	}
	got := req.Assemble()
	want := []string{
		"/bin/sh", "-c", `wrap="$1"; shift; $wrap "$@"`,
		"/bin/sh", "systemd-run --user", "app", "arg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAssembleWrapperCustom(t *testing.T) {
	req := Request{
		Custom:  true,
		Raw:     "echo hi",
		Shell:   "/bin/sh",
		Wrapper: "sudo",
	}
	got := req.Assemble()
	want := []string{
		"/bin/sh", "-c", `wrap="$1"; shift; $wrap "$@"`,
		"/bin/sh", "sudo", "/bin/sh", "-c", "echo hi",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestIPCPayload(t *testing.T) {
	req := Request{Argv: []string{"app"}, Shell: "/bin/sh"}
	if got := req.IPCPayload(); got != "exec 'app'" {
		t.Errorf("Expected plain payload, got %s", got)
	}

	req.Terminal = true
	req.Term = "xterm"
	want := `xterm -e /bin/sh -c 'exec '\''app'\'`
	if got := req.IPCPayload(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestIPCPayloadWrapper(t *testing.T) {
	req := Request{
		Argv:    []string{"app", "arg"},
		Shell:   "/bin/sh",
		Wrapper: "systemd-run --user",
	}
	want := `exec systemd-run --user ''\''app'\'' '\''arg'\'`
	if got := req.IPCPayload(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	// Custom commands keep the wrapper but get no exec prefix.
	req = Request{
		Custom:  true,
		Raw:     "echo hi",
		Shell:   "/bin/sh",
		Wrapper: "sudo",
	}
	if got := req.IPCPayload(); got != "sudo 'echo hi'" {
		t.Errorf("Expected the wrapped custom command, got %s", got)
	}
}
