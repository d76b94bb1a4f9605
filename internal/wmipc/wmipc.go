// Package wmipc routes command execution through a window manager's IPC
// socket instead of spawning the process ourselves. Sway sessions go
// through the go-sway client; plain i3 gets the raw i3-ipc frame, which
// is a fixed header followed by the command payload.
package wmipc

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/joshuarubin/go-sway"

	"github.com/chess10kp/dmenud/internal/logging"
)

const (
	ipcMagic       = "i3-ipc"
	runCommandType = 0
)

// Conn is a resolved window-manager IPC target.
type Conn struct {
	swaySocket string
	i3Socket   string
	logger     *logging.Logger
}

// Resolve determines the IPC socket. $SWAYSOCK wins, then $I3SOCK, then
// the i3 discovery command.
func Resolve(swaySock, i3Sock string, logger *logging.Logger) (*Conn, error) {
	if swaySock != "" {
		logger.Debugf("Using sway IPC socket %s", swaySock)
		return &Conn{swaySocket: swaySock, logger: logger}, nil
	}
	if i3Sock == "" {
		out, err := exec.Command("i3", "--get-socketpath").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to discover the i3 IPC socket "+
				"(is i3 running?): %w", err)
		}
		i3Sock = strings.TrimSpace(string(out))
	}
	if i3Sock == "" {
		return nil, fmt.Errorf("no window-manager IPC socket available")
	}
	logger.Debugf("Using i3 IPC socket %s", i3Sock)
	return &Conn{i3Socket: i3Sock, logger: logger}, nil
}

// RunCommand submits a run-command message. The payload is the exact
// command string. On the i3 path no reply is awaited; the sway client
// reads the reply and reports a rejected command as an error.
func (c *Conn) RunCommand(ctx context.Context, command string) error {
	if c.swaySocket != "" {
		client, err := sway.New(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect to sway: %w", err)
		}
		if _, err := client.RunCommand(ctx, command); err != nil {
			return fmt.Errorf("sway rejected the command: %w", err)
		}
		return nil
	}
	return sendI3Message(c.i3Socket, runCommandType, []byte(command))
}

// sendI3Message writes one i3-ipc frame and closes the socket.
func sendI3Message(socketPath string, msgType uint32, payload []byte) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to the i3 IPC socket: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, 0, len(ipcMagic)+8+len(payload))
	buf = append(buf, ipcMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = binary.LittleEndian.AppendUint32(buf, msgType)
	buf = append(buf, payload...)

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("failed to send the i3 IPC message: %w", err)
	}
	return nil
}
