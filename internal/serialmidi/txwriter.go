package serialmidi

import (
	"context"
	"errors"

	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/midi"
	"github.com/purplemass/midi-fabric/internal/transport"
)

// ErrTxOverflow is returned by SendTriple when the outbound buffer is full.
var ErrTxOverflow = errors.New("serialmidi tx overflow")

// TXWriter funnels all serial writes through one goroutine, so a UART that
// briefly stalls never blocks the session goroutine calling SendTriple.
type TXWriter struct{ base *transport.AsyncTx[midi.Event] }

// NewTXWriter creates a serial TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, p Port, buf int) *TXWriter {
	send := func(ev midi.Event) error {
		raw := ev.Bytes()
		_, err := p.Write(raw[:])
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialSend)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSerialTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendTriple queues a MIDI triple for asynchronous write (drops with
// ErrTxOverflow if the buffer is full), matching midiio.SharedOutputConn's
// interface so either backend can be selected interchangeably.
func (w *TXWriter) SendTriple(status, data1, data2 byte) error {
	return w.base.Send(midi.Event{Status: status, Data1: data1, Data2: data2})
}

// Close stops the writer and waits for the pending goroutine to exit.
func (w *TXWriter) Close() { w.base.Close() }
