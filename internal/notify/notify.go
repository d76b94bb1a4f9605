// Package notify raises desktop notifications over D-Bus. The daemon
// has no terminal to report launch failures to, so they surface here.
package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	busName   = "org.freedesktop.Notifications"
	objPath   = "/org/freedesktop/Notifications"
	notifyDst = "org.freedesktop.Notifications.Notify"
)

// LaunchFailure shows a best-effort notification about a failed launch.
func LaunchFailure(appName string, launchErr error) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to the session bus: %w", err)
	}

	obj := conn.Object(busName, objPath)
	call := obj.Call(notifyDst, 0,
		"dmenud",                    // app_name
		uint32(0),                   // replaces_id
		"dialog-error",              // app_icon
		"Failed to launch "+appName, // summary
		launchErr.Error(),           // body
		[]string{},                  // actions
		map[string]dbus.Variant{},   // hints
		int32(-1),                   // expire_timeout
	)
	if call.Err != nil {
		return fmt.Errorf("notification call failed: %w", call.Err)
	}
	return nil
}
