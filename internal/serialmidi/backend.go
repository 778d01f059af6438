package serialmidi

import (
	"context"
	"fmt"
	"time"

	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/midi"
)

// DefaultBaud is the conventional MIDI UART rate (31.25 kbaud).
const DefaultBaud = 31250

// Backend pairs a TXWriter with the RX loop over one serial device, giving
// callers the same SendTriple/Listen shape as midiio.IO so either backend
// can be selected via client configuration.
type Backend struct {
	port Port
	tx   *TXWriter
}

// Open opens dev at baud and starts the TX funnel; queueSize bounds how many
// outbound triples may be buffered before SendTriple starts dropping.
func Open(ctx context.Context, dev string, baud int, queueSize int) (*Backend, error) {
	p, err := openDevice(dev, baud, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("serialmidi: open %s: %w", dev, err)
	}
	logging.L().Info("serial_open", "device", dev, "baud", baud)
	return &Backend{port: p, tx: NewTXWriter(ctx, p, queueSize)}, nil
}

// SendTriple queues a MIDI triple for asynchronous transmission.
func (b *Backend) SendTriple(status, data1, data2 byte) error {
	return b.tx.SendTriple(status, data1, data2)
}

// Listen starts the RX loop, invoking onEvent for each decoded triple.
// Blocks until ctx is cancelled or the device read fails fatally.
func (b *Backend) Listen(ctx context.Context, onEvent func(status, data1, data2 byte)) {
	RunRX(ctx, b.port, func(ev midi.Event) {
		onEvent(ev.Status, ev.Data1, ev.Data2)
	})
}

// Close stops the TX funnel and closes the underlying device.
func (b *Backend) Close() error {
	b.tx.Close()
	return b.port.Close()
}
