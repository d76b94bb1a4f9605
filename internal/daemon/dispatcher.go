// Package daemon orchestrates menu sessions: it feeds display keys to
// the menu program, resolves the user's choice against the catalog,
// updates the usage history and hands the command over to execution. In
// daemon mode it also multiplexes the control FIFO with the filesystem
// watcher.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/sahilm/fuzzy"

	"github.com/chess10kp/dmenud/internal/apps"
	"github.com/chess10kp/dmenud/internal/cmdline"
	"github.com/chess10kp/dmenud/internal/desktop"
	"github.com/chess10kp/dmenud/internal/history"
	"github.com/chess10kp/dmenud/internal/logging"
	"github.com/chess10kp/dmenud/internal/menu"
	"github.com/chess10kp/dmenud/internal/notify"
	"github.com/chess10kp/dmenud/internal/wmipc"
)

// Matches below this score are too weak to trust for implicit
// resolution; the choice is treated as a custom command instead.
const minFuzzyScore = 25

// Dispatcher ties the catalog, history, menu and execution together.
type Dispatcher struct {
	Apps        *apps.Manager
	Hist        *history.Manager // nil disables history
	MenuCommand string
	Shell       string
	Term        string
	Wrapper     string
	NoExec      bool
	Fuzzy       bool
	IPC         *wmipc.Conn // nil executes locally
	Quirks      desktop.Quirks
	Logger      *logging.Logger

	mapping *apps.NameMap
}

// RebuildMapping recomputes the display-key mapping from the catalog.
func (d *Dispatcher) RebuildMapping() {
	d.mapping = d.Apps.NameMap()
}

// lookupResult resolves a menu choice.
type lookupResult struct {
	entry  *desktop.Entry
	key    string // matched display key
	args   string // trailing user arguments
	custom bool   // no match; choice is a raw command
}

// lookup resolves a choice: exact key, then any key that prefixes the
// choice followed by a space, then (opt-in) a fuzzy match, and finally a
// custom command.
func (d *Dispatcher) lookup(choice string) lookupResult {
	if e, ok := d.mapping.Lookup(choice); ok {
		return lookupResult{entry: e, key: choice}
	}
	for _, key := range d.mapping.Keys() {
		if len(choice) > len(key) && choice[len(key)] == ' ' &&
			d.mapping.Fold(choice[:len(key)]) == d.mapping.Fold(key) {
			e, _ := d.mapping.Lookup(key)
			return lookupResult{entry: e, key: key, args: choice[len(key)+1:]}
		}
	}
	if d.Fuzzy {
		matches := fuzzy.Find(choice, d.mapping.Keys())
		if len(matches) > 0 && matches[0].Score >= minFuzzyScore {
			key := matches[0].Str
			d.Logger.Infof("Fuzzy-matched %q to %q", choice, key)
			e, _ := d.mapping.Lookup(key)
			return lookupResult{entry: e, key: key}
		}
	}
	return lookupResult{args: choice, custom: true}
}

// writeKeys streams the display keys to the menu: history entries first
// in rank order, then the remaining catalog keys in comparator order.
// Each key appears at most once; history entries with no catalog match
// are skipped but stay on disk.
func (d *Dispatcher) writeKeys(sess *menu.Session) error {
	seen := make(map[string]struct{})
	if d.Hist != nil {
		for _, he := range d.Hist.View() {
			if _, ok := d.mapping.Lookup(he.Name); !ok {
				d.Logger.Debugf("History name %q has no catalog entry, not shown", he.Name)
				continue
			}
			if err := sess.WriteLine(he.Name); err != nil {
				return err
			}
			seen[d.mapping.Fold(he.Name)] = struct{}{}
		}
	}
	for _, key := range d.mapping.Keys() {
		if _, dup := seen[d.mapping.Fold(key)]; dup {
			continue
		}
		if err := sess.WriteLine(key); err != nil {
			return err
		}
	}
	return nil
}

// RunMenu runs one complete menu session. With replaceProcess the chosen
// command replaces this process (one-shot mode); otherwise it is spawned
// into its own session and the daemon keeps running.
func (d *Dispatcher) RunMenu(replaceProcess bool) error {
	if d.mapping == nil {
		d.RebuildMapping()
	}

	sess, err := menu.Start(d.MenuCommand, d.Shell)
	if err != nil {
		return err
	}
	if err := d.writeKeys(sess); err != nil {
		return err
	}
	choice, err := sess.ReadChoice()
	if err != nil {
		return err
	}
	if choice == "" {
		d.Logger.Infof("No application has been selected")
		return nil
	}
	fmt.Fprintf(os.Stderr, "User input is: %s\n", choice)
	d.Logger.Infof("User input is: %s", choice)

	res := d.lookup(choice)
	req, err := d.buildRequest(res)
	if err != nil {
		return d.launchFailed(choice, err, replaceProcess)
	}

	if d.NoExec {
		if d.Wrapper != "" {
			fmt.Fprintf(os.Stderr, "%s \"%s\"\n", d.Wrapper, req.CommandString())
		} else {
			fmt.Fprintln(os.Stderr, req.CommandString())
		}
		return nil
	}

	if d.Hist != nil && !res.custom {
		if err := d.Hist.Increment(d.mapping.Fold(res.key)); err != nil {
			d.Logger.Warnf("Failed to update history: %v", err)
		}
	}

	var workDir string
	if !res.custom {
		workDir = res.entry.WorkDir
	}
	if err := d.execute(req, workDir, replaceProcess); err != nil {
		return d.launchFailed(choice, err, replaceProcess)
	}
	return nil
}

// buildRequest expands the chosen entry's Exec template, or passes a
// custom command through untouched.
func (d *Dispatcher) buildRequest(res lookupResult) (cmdline.Request, error) {
	req := cmdline.Request{
		Shell:   d.Shell,
		Term:    d.Term,
		Wrapper: d.Wrapper,
	}
	if res.custom {
		req.Custom = true
		req.Raw = res.args
		return req, nil
	}

	tokens, err := desktop.TokenizeExec(res.entry.Exec, d.Quirks, d.Logger)
	if err != nil {
		return req, fmt.Errorf("cannot launch %s: %w", res.entry.Path, err)
	}
	argv, err := desktop.ExpandFieldCodes(tokens, desktop.ExpandContext{
		Arg:  res.args,
		Icon: res.entry.Icon,
		Name: res.entry.Name,
		Path: res.entry.Path,
	})
	if err != nil {
		return req, fmt.Errorf("cannot launch %s: %w", res.entry.Path, err)
	}
	req.Argv = argv
	req.Terminal = res.entry.Terminal
	return req, nil
}

// execute hands the assembled command to the IPC channel, replaces the
// process, or spawns a detached child.
func (d *Dispatcher) execute(req cmdline.Request, workDir string, replaceProcess bool) error {
	if d.IPC != nil {
		payload := req.IPCPayload()
		d.Logger.Infof("IPC command: %s", payload)
		return d.IPC.RunCommand(context.Background(), payload)
	}

	argv := req.Assemble()
	d.Logger.Infof("Command: %s", strings.Join(argv, " "))

	if replaceProcess {
		path, err := exec.LookPath(argv[0])
		if err != nil {
			return fmt.Errorf("failed to find %s: %w", argv[0], err)
		}
		if workDir != "" {
			if err := os.Chdir(workDir); err != nil {
				d.Logger.Warnf("Failed to change directory to %s: %v", workDir, err)
			}
		}
		if err := syscall.Exec(path, argv, os.Environ()); err != nil {
			return fmt.Errorf("failed to execute %s: %w", argv[0], err)
		}
		return nil // unreachable
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workDir
	// New session, so the child survives the daemon and orphans get
	// reparented instead of turning into zombies of ours.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	cmd.Process.Release()
	return nil
}

// launchFailed reports a launch-time failure. In one-shot mode it is
// fatal; the daemon logs it, raises a notification and keeps serving.
func (d *Dispatcher) launchFailed(choice string, err error, fatal bool) error {
	if fatal {
		return err
	}
	d.Logger.Errorf("%v", err)
	if nerr := notify.LaunchFailure(choice, err); nerr != nil {
		d.Logger.Debugf("Could not raise a notification: %v", nerr)
	}
	return nil
}
