package email

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"seatwatch/internal/course"
	"seatwatch/internal/transport"
)

// fakeSMTP accepts one message and records the envelope and data.
type fakeSMTP struct {
	ln net.Listener

	mu   sync.Mutex
	from string
	rcpt string
	data string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln, done: make(chan struct{})}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeSMTP) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeSMTP) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	defer close(f.done)

	r := bufio.NewReader(conn)
	write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	write("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 fake")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			f.mu.Lock()
			f.from = strings.TrimSpace(line[len("MAIL FROM:"):])
			f.mu.Unlock()
			write("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			f.mu.Lock()
			f.rcpt = strings.TrimSpace(line[len("RCPT TO:"):])
			f.mu.Unlock()
			write("250 ok")
		case cmd == "DATA":
			write("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			f.mu.Lock()
			f.data = b.String()
			f.mu.Unlock()
			write("250 queued")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func TestSendDeliversMessage(t *testing.T) {
	t.Parallel()

	srv := startFakeSMTP(t)
	s, err := New(Config{Host: "127.0.0.1", Port: srv.port(), From: "Seatwatch <bot@example.com>"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC) }

	key := course.NewSectionKey("1241", "CS", "135", "001")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.Send(ctx, transport.Message{
		To:      "a@example.com",
		Subject: "Seat open: CS 135 001",
		Body:    "A seat opened.\nGo enroll.",
		Key:     key,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "<bot@example.com>" || srv.rcpt != "<a@example.com>" {
		t.Fatalf("envelope from=%q rcpt=%q", srv.from, srv.rcpt)
	}
	for _, want := range []string{
		"To: <a@example.com>\r\n",
		"Subject: Seat open: CS 135 001\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"A seat opened.\r\nGo enroll.\r\n",
	} {
		if !strings.Contains(srv.data, want) {
			t.Fatalf("data missing %q:\n%s", want, srv.data)
		}
	}
}

func TestSendRejectsBadRecipient(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Host: "127.0.0.1", Port: 1, From: "bot@example.com"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), transport.Message{To: "not an address"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{From: "bot@example.com"}); err == nil {
		t.Fatalf("missing host accepted")
	}
	if _, err := New(Config{Host: "smtp.example.com", From: "nope"}); err == nil {
		t.Fatalf("bad from accepted")
	}
	s, err := New(Config{Host: "smtp.example.com", From: "bot@example.com"})
	if err != nil || s.cfg.Port != 587 {
		t.Fatalf("defaults: %v %+v", err, s)
	}
}
