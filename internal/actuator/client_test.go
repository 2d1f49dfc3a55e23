package actuator

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// startBoard runs a fake servo board that answers the line protocol.
// It serves any number of sequential connections until the test ends.
func startBoard(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					cmd := strings.TrimSpace(line)
					switch {
					case strings.HasPrefix(cmd, "dome "):
						arg := strings.TrimPrefix(cmd, "dome ")
						conn.Write([]byte("dome:" + arg + "\n"))
					case strings.HasPrefix(cmd, "et1 "):
						conn.Write([]byte("et1:" + strings.TrimPrefix(cmd, "et1 ") + "\n"))
					case strings.HasPrefix(cmd, "et2 "):
						conn.Write([]byte("et2:" + strings.TrimPrefix(cmd, "et2 ") + "\n"))
					case cmd == "status":
						conn.Write([]byte("dome:180\net1:45\net2:120\n"))
					default:
						conn.Write([]byte("err\n"))
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func TestClient_SendRequestResponse(t *testing.T) {
	addr := startBoard(t)

	c := NewClient(ClientConfig{Address: addr})
	defer c.Close()

	if got := c.Send("dome 180"); got != "dome:180" {
		t.Errorf("Send(dome 180) = %q, want %q", got, "dome:180")
	}
	if got := c.Send("et1 90"); got != "et1:90" {
		t.Errorf("Send(et1 90) = %q, want %q", got, "et1:90")
	}

	if !c.Connected() {
		t.Error("Connected() = false after successful exchange")
	}
}

func TestClient_StatusMultiLine(t *testing.T) {
	addr := startBoard(t)

	c := NewClient(ClientConfig{Address: addr})
	defer c.Close()

	resp := c.Send("status")
	if !strings.Contains(resp, "dome:180") ||
		!strings.Contains(resp, "et1:45") ||
		!strings.Contains(resp, "et2:120") {
		t.Errorf("Send(status) = %q, want all three key:value lines", resp)
	}
}

func TestClient_FailureCapAndRearm(t *testing.T) {
	// An address with no listener behind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient(ClientConfig{
		Address:        addr,
		ConnectTimeout: 100 * time.Millisecond,
		MaxFailures:    2,
		LogInterval:    time.Hour, // Keep logging quiet during the test
	})
	defer c.Close()

	var warned atomic.Int32
	c.SetOnUnreachable(func(failures int) {
		warned.Add(1)
	})

	// Each failing send increments the counter until the cap.
	for i := 0; i < 4; i++ {
		if got := c.Send("status"); got != "" {
			t.Fatalf("Send() to dead board = %q, want empty", got)
		}
	}

	if !c.Blocked() {
		t.Error("Blocked() = false, want true after cap")
	}
	if got := warned.Load(); got != 1 {
		t.Errorf("unreachable warning fired %d times, want exactly 1", got)
	}

	// Rearm allows exactly one more attempt, which fails and re-caps,
	// but must not re-fire the warning.
	c.AllowRetry()
	if c.Blocked() {
		t.Error("Blocked() = true immediately after AllowRetry")
	}
	c.Send("status")
	if !c.Blocked() {
		t.Error("Blocked() = false, want true after failed retry")
	}
	if got := warned.Load(); got != 1 {
		t.Errorf("unreachable warning fired %d times after rearm, want 1", got)
	}
}

func TestClient_IdleWatcherClosesSocket(t *testing.T) {
	addr := startBoard(t)

	c := NewClient(ClientConfig{
		Address:       addr,
		IdleTimeout:   50 * time.Millisecond,
		WatchInterval: 20 * time.Millisecond,
	})
	defer c.Close()

	if got := c.Send("dome 0"); got != "dome:0" {
		t.Fatalf("Send() = %q", got)
	}
	if !c.Connected() {
		t.Fatal("expected live socket after exchange")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.Connected() {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Connected() {
		t.Error("idle watcher did not close the socket")
	}

	// A later send reconnects lazily.
	if got := c.Send("dome 180"); got != "dome:180" {
		t.Errorf("Send() after idle close = %q, want dome:180", got)
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	c := NewClient(ClientConfig{Address: "127.0.0.1:1"})

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if got := c.Send("status"); got != "" {
		t.Errorf("Send() after Close = %q, want empty", got)
	}
}
