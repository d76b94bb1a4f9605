package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/chess10kp/dmenud/internal/watch"
)

// RunDaemon serves menu sessions until a 'q' byte arrives on the control
// FIFO. Catalog updates from the filesystem watcher and menu requests
// are multiplexed in a single loop; all pending updates are applied
// before a session starts, and sessions run to completion, so at most
// one menu process exists at a time.
func (d *Dispatcher) RunDaemon(fifoPath string, roots []string) error {
	if err := unix.Mkfifo(fifoPath, 0600); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("failed to create control FIFO %s: %w", fifoPath, err)
	}
	// Opened read+write so the FIFO stays open across client disconnects.
	fifo, err := os.OpenFile(fifoPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open control FIFO %s: %w", fifoPath, err)
	}
	defer fifo.Close()

	watcher, err := watch.New(roots, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to watch the search path: %w", err)
	}
	defer watcher.Close()

	fifoCh := make(chan byte)
	fifoErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := fifo.Read(buf)
			if err != nil {
				fifoErr <- err
				return
			}
			if n > 0 {
				fifoCh <- buf[0]
			}
		}
	}()

	// Launched applications run in their own sessions and are never
	// waited for; reap them as they terminate.
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, unix.SIGCHLD)
	defer signal.Stop(sigCh)

	dirty := false
	for {
		select {
		case ev := <-watcher.Events():
			d.applyEvent(ev, roots)
			dirty = true

		case b := <-fifoCh:
			if b == 'q' {
				d.Logger.Infof("Shutdown requested")
				return nil
			}
			// Apply every pending catalog update before the menu runs.
			dirty = d.drainEvents(watcher, roots) || dirty
			if dirty {
				d.RebuildMapping()
				dirty = false
			}
			if err := d.RunMenu(false); err != nil {
				return err
			}

		case err := <-fifoErr:
			return fmt.Errorf("failed to read the control FIFO: %w", err)

		case <-sigCh:
			reapChildren()
		}
	}
}

// applyEvent folds one watcher event into the catalog.
func (d *Dispatcher) applyEvent(ev watch.Event, roots []string) {
	if ev.Rank >= len(roots) {
		return
	}
	root := roots[ev.Rank]
	switch ev.Kind {
	case watch.Modified:
		d.Logger.Debugf("Desktop file %s modified under %s", ev.ID, root)
		d.Apps.Add(ev.ID, root, ev.Rank)
	case watch.Deleted:
		d.Logger.Debugf("Desktop file %s deleted under %s", ev.ID, root)
		d.Apps.Remove(ev.ID, root)
	}
	if d.Logger.DebugEnabled() {
		if err := d.Apps.CheckConsistency(); err != nil {
			// A broken catalog invariant is a bug; crash loudly instead
			// of serving wrong results.
			d.Logger.Errorf("Catalog consistency check failed: %v", err)
			panic(err)
		}
	}
}

// drainEvents applies every event the watcher has already queued. It
// reports whether anything changed.
func (d *Dispatcher) drainEvents(watcher *watch.Watcher, roots []string) bool {
	changed := false
	for {
		select {
		case ev := <-watcher.Events():
			d.applyEvent(ev, roots)
			changed = true
		default:
			return changed
		}
	}
}

// reapChildren collects any terminated children without blocking.
func reapChildren() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}
