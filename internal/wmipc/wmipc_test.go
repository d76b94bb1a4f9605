package wmipc

import (
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/chess10kp/dmenud/internal/logging"
)

var testLogger = logging.New(logging.LevelError)

func TestSendI3Message(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "ipc.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to listen on unix socket: %v", err)
	}
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	command := "exec 'firefox'"
	if err := sendI3Message(socketPath, runCommandType, []byte(command)); err != nil {
		t.Fatalf("sendI3Message failed: %v", err)
	}

	data := <-received
	if data == nil {
		t.Fatal("No data received on the socket")
	}

	if len(data) != 14+len(command) {
		t.Fatalf("Expected %d bytes, got %d", 14+len(command), len(data))
	}
	if string(data[:6]) != "i3-ipc" {
		t.Errorf("Bad magic %q", data[:6])
	}
	if length := binary.LittleEndian.Uint32(data[6:10]); length != uint32(len(command)) {
		t.Errorf("Bad payload length %d", length)
	}
	if msgType := binary.LittleEndian.Uint32(data[10:14]); msgType != 0 {
		t.Errorf("Bad message type %d", msgType)
	}
	if string(data[14:]) != command {
		t.Errorf("Bad payload %q", data[14:])
	}
}

func TestResolvePrefersSway(t *testing.T) {
	conn, err := Resolve("/run/sway.sock", "/run/i3.sock", testLogger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if conn.swaySocket != "/run/sway.sock" {
		t.Errorf("Expected the sway socket to win, got %+v", conn)
	}
}

func TestResolveI3Socket(t *testing.T) {
	conn, err := Resolve("", "/run/i3.sock", testLogger)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if conn.i3Socket != "/run/i3.sock" {
		t.Errorf("Expected the i3 socket, got %+v", conn)
	}
}
