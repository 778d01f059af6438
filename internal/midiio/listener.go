package midiio

import (
	"context"

	"github.com/purplemass/midi-fabric/internal/debounce"
	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/midi"
)

// Listener pairs one subscribed input port with its debounce buffer and
// flusher task: the MIDI callback stamps incoming messages into the
// buffer, and a paired flusher goroutine periodically drains it to the
// outbound queue.
type Listener struct {
	port   Port
	buffer *debounce.Buffer
	stop   func()
}

// StartListener installs the callback on port and starts its paired
// flusher goroutine. Cancelling ctx stops the flusher; the caller is
// responsible for calling Stop to detach the MIDI callback.
func StartListener(ctx context.Context, io *IO, port Port, owner identity.ClientId, out chan<- string) (*Listener, error) {
	buf := debounce.New(owner, out)
	stop, err := io.Listen(port, func(status, d1, d2 byte) {
		buf.Add(midi.Event{Status: status, Data1: d1, Data2: d2})
	})
	if err != nil {
		return nil, err
	}
	go buf.RunFlusher(ctx)
	return &Listener{port: port, buffer: buf, stop: stop}, nil
}

// Stop detaches the MIDI callback and drops the listener's input connection.
func (l *Listener) Stop() {
	if l.stop != nil {
		l.stop()
	}
}
