package serialmidi

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/midi"
)

// Backoff bounds for the RX read-error loop.
const (
	rxBackoffMin = 10 * time.Millisecond
	rxBackoffMax = 2 * time.Second
	rxReadBufLen = 64
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// threeByteStatus reports whether status begins a 3-byte channel voice
// message (note on/off, poly pressure, control change, pitch bend). Program
// change and channel pressure (2-byte messages) are out of scope for a
// fabric built around 3-byte MIDI events and are skipped during resync.
func threeByteStatus(b byte) bool {
	if b < 0x80 {
		return false
	}
	hi := b & 0xF0
	return hi == 0x80 || hi == 0x90 || hi == 0xA0 || hi == 0xB0 || hi == 0xE0
}

// decoder resyncs a raw MIDI byte stream to status-byte boundaries and
// extracts complete 3-byte events, buffering any trailing partial message
// across reads.
type decoder struct {
	pending []byte
}

// feed appends newly-read bytes and invokes onEvent for each complete
// 3-byte message found, discarding bytes that precede the next status byte.
func (d *decoder) feed(chunk []byte, onEvent func(midi.Event)) {
	d.pending = append(d.pending, chunk...)
	for len(d.pending) > 0 {
		if !threeByteStatus(d.pending[0]) {
			d.pending = d.pending[1:] // resync: drop stray/unsupported byte
			continue
		}
		if len(d.pending) < 3 {
			return // wait for the rest of the message
		}
		onEvent(midi.Event{Status: d.pending[0], Data1: d.pending[1], Data2: d.pending[2]})
		d.pending = d.pending[3:]
	}
}

// RunRX reads from p until ctx is cancelled or a fatal device error occurs,
// emitting each decoded MIDI triple to onEvent. Transient read errors are
// retried with exponential backoff rather than tearing down the backend.
func RunRX(ctx context.Context, p Port, onEvent func(midi.Event)) {
	logger := logging.L()
	defer logger.Info("serial_rx_end")
	buf := make([]byte, rxReadBufLen)
	dec := &decoder{}
	backoff := rxBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := p.Read(buf)
		if n > 0 {
			dec.feed(buf[:n], func(ev midi.Event) {
				metrics.IncSerialRx()
				onEvent(ev)
			})
			backoff = rxBackoffMin
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				logger.Error("serial_rx_fatal", "error", err)
				return // device removed or otherwise unrecoverable
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue // transient on some UART drivers under ReadTimeout
			}
			metrics.IncError(metrics.ErrSerialRead)
			logger.Warn("serial_read_error", "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}
}
