package serialmidi

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/purplemass/midi-fabric/internal/midi"
)

// fakePort is an in-memory Port backed by an io.Pipe pair, letting TX/RX
// tests run without a real UART.
type fakePort struct {
	mu     sync.Mutex
	closed bool
	r      *io.PipeReader
	w      *io.PipeWriter
}

func newLoopbackPort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.r.Close()
	return p.w.Close()
}

func TestTXWriterWritesQueuedTriple(t *testing.T) {
	port := newLoopbackPort()
	defer port.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewTXWriter(ctx, port, 4)
	defer w.Close()

	if err := w.SendTriple(0x90, 60, 127); err != nil {
		t.Fatalf("SendTriple: %v", err)
	}

	buf := make([]byte, 3)
	if _, err := io.ReadFull(port.r, buf); err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := [3]byte{0x90, 60, 127}
	if buf[0] != want[0] || buf[1] != want[1] || buf[2] != want[2] {
		t.Fatalf("got %v want %v", buf, want)
	}
}

func TestRunRXDecodesLoopbackStream(t *testing.T) {
	port := newLoopbackPort()
	defer port.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan [3]byte, 4)
	go RunRX(ctx, port, func(ev midi.Event) {
		events <- ev.Bytes()
	})

	go func() {
		_, _ = port.w.Write([]byte{0x90, 64, 100})
	}()

	select {
	case got := <-events:
		if got != [3]byte{0x90, 64, 100} {
			t.Fatalf("got %v, want [144 64 100]", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for decoded event")
	}
}
