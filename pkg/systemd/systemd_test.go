package systemd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "seatwatch/pkg/logx"
)

func TestReadyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	if err != nil || sent {
		t.Fatalf("Ready() = %v, %v; want false, nil", sent, err)
	}
}

func TestReadyAndStatusReachSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "sd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram not available: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	read := func() string {
		t.Helper()
		buf := make([]byte, 256)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return string(buf[:n])
	}

	if sent, err := Ready(); err != nil || !sent {
		t.Fatalf("Ready() = %v, %v", sent, err)
	}
	if got := read(); got != "READY=1" {
		t.Fatalf("got %q", got)
	}
	if _, err := Status("polling 3 courses"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := read(); got != "STATUS=polling 3 courses" {
		t.Fatalf("got %q", got)
	}
}

func TestWatchdogDisabledReturns(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan struct{})
	go func() {
		Watchdog(context.Background(), logx.Nop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog blocked without WATCHDOG_USEC")
	}
}
