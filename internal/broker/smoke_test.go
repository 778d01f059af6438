package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/purplemass/midi-fabric/internal/hub"
	"github.com/purplemass/midi-fabric/internal/wire"
)

func startTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(WithHub(hub.New()))
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Logf("Serve returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}
	return srv, cancel
}

// TestSmokeBroadcastIncludesSender verifies the fan-out policy: a frame
// from peer A is relayed to every peer, A included.
func TestSmokeBroadcastIncludesSender(t *testing.T) {
	srv, cancel := startTestServer(t)
	defer cancel()

	d := net.Dialer{Timeout: time.Second}
	a, err := d.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, err := d.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && srv.Hub.Count() < 2 {
		time.Sleep(2 * time.Millisecond)
	}
	if srv.Hub.Count() != 2 {
		t.Fatalf("expected 2 registered peers, got %d", srv.Hub.Count())
	}

	fr, err := wire.Encode("client-a", "[144, 60, 127]")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := a.Write(fr[:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, conn := range []net.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, wire.FrameSize)
		if _, err := ioReadFull(conn, buf); err != nil {
			t.Fatalf("read relayed frame: %v", err)
		}
		id, body, err := wire.Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if id != "client-a" || body != "[144, 60, 127]" {
			t.Fatalf("unexpected relayed frame id=%q body=%q", id, body)
		}
	}
}

// TestSmokePeerPruned verifies a dead peer is removed from the registry
// after the next dispatch following its failure.
func TestSmokePeerPruned(t *testing.T) {
	srv, cancel := startTestServer(t)
	defer cancel()

	d := net.Dialer{Timeout: time.Second}
	dead, err := d.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	alive, err := d.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer alive.Close()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && srv.Hub.Count() < 2 {
		time.Sleep(2 * time.Millisecond)
	}

	_ = dead.Close() // next write to this peer will fail

	fr, err := wire.Encode("client-a", "[144, 60, 127]")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := alive.Write(fr[:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.Hub.Count() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Hub.Count() != 1 {
		t.Fatalf("expected dead peer pruned, count=%d", srv.Hub.Count())
	}
}

// TestSmokeMalformedFrameDoesNotKillSession verifies a UTF-8 decode
// failure is fatal to the individual frame, not the session.
func TestSmokeMalformedFrameDoesNotKillSession(t *testing.T) {
	srv, cancel := startTestServer(t)
	defer cancel()

	d := net.Dialer{Timeout: time.Second}
	a, err := d.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer a.Close()

	var bad wire.Frame
	copy(bad[:], []byte{'a', 0xff, 0xfe}) // no separator, invalid utf8
	if _, err := a.Write(bad[:]); err != nil {
		t.Fatalf("write malformed: %v", err)
	}

	good, err := wire.Encode("client-a", "[144, 60, 127]")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := a.Write(good[:]); err != nil {
		t.Fatalf("write good: %v", err)
	}

	_ = a.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, wire.FrameSize)
	if _, err := ioReadFull(a, buf); err != nil {
		t.Fatalf("expected the good frame to still be relayed: %v", err)
	}
	if _, body, err := wire.Decode(buf); err != nil || body != "[144, 60, 127]" {
		t.Fatalf("unexpected relayed body %q err=%v", body, err)
	}
}

func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
