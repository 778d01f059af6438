package main

import (
	"context"
	"fmt"

	"github.com/purplemass/midi-fabric/internal/debounce"
	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/midi"
	"github.com/purplemass/midi-fabric/internal/midiio"
	"github.com/purplemass/midi-fabric/internal/serialmidi"
)

// midiBackend is the uniform surface main.go drives regardless of which
// concrete MIDI transport was selected.
type midiBackend interface {
	SendTriple(status, data1, data2 byte) error
	// startInputs wires up input listening per the port selection policy
	// and reports whether the client ended up render-only.
	startInputs(ctx context.Context, owner identity.ClientId, out chan<- string, cfg *appConfig) (renderOnly bool, err error)
	Close() error
}

// virtualBackend drives the OS MIDI subsystem via internal/midiio.
type virtualBackend struct {
	io        *midiio.IO
	out       *midiio.SharedOutputConn
	ins       []midiio.Port
	listeners []*midiio.Listener
}

// defaultVirtualOutputName is used when --output-mode=virtual and no
// --virtual-output-name was given.
const defaultVirtualOutputName = midiio.SelfSignature + "-out"

func newVirtualBackend(cfg *appConfig) (*virtualBackend, error) {
	io, err := midiio.Open()
	if err != nil {
		return nil, fmt.Errorf("open midi driver: %w", err)
	}
	ins, outs, err := io.Enumerate()
	if err != nil {
		_ = io.Close()
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	if cfg.outputMode == "virtual" {
		name := cfg.virtualOutputName
		if name == "" {
			name = defaultVirtualOutputName
		}
		out, err := io.OpenVirtualOutput(name)
		if err != nil {
			_ = io.Close()
			return nil, fmt.Errorf("open virtual output %q: %w", name, err)
		}
		return &virtualBackend{io: io, out: out, ins: ins}, nil
	}

	if cfg.outputID < 0 || cfg.outputID >= len(outs) {
		_ = io.Close()
		return nil, fmt.Errorf("output index %d out of range (found %d filtered outputs)", cfg.outputID, len(outs))
	}
	out, err := io.OpenRealOutput(outs[cfg.outputID])
	if err != nil {
		_ = io.Close()
		return nil, fmt.Errorf("open output %q: %w", outs[cfg.outputID].Name, err)
	}
	return &virtualBackend{io: io, out: out, ins: ins}, nil
}

func (b *virtualBackend) SendTriple(status, data1, data2 byte) error {
	return b.out.SendTriple(status, data1, data2)
}

func (b *virtualBackend) startInputs(ctx context.Context, owner identity.ClientId, out chan<- string, cfg *appConfig) (bool, error) {
	if len(b.ins) == 0 {
		return true, nil // no inputs enumerated -> render-only mode
	}
	if cfg.hasInputID {
		if cfg.inputID < 0 || cfg.inputID >= len(b.ins) {
			return false, fmt.Errorf("input index %d out of range (found %d filtered inputs)", cfg.inputID, len(b.ins))
		}
		l, err := midiio.StartListener(ctx, b.io, b.ins[cfg.inputID], owner, out)
		if err != nil {
			return false, fmt.Errorf("start listener on %q: %w", b.ins[cfg.inputID].Name, err)
		}
		b.listeners = append(b.listeners, l)
		return false, nil
	}
	for _, p := range b.ins {
		l, err := midiio.StartListener(ctx, b.io, p, owner, out)
		if err != nil {
			return false, fmt.Errorf("start listener on %q: %w", p.Name, err)
		}
		b.listeners = append(b.listeners, l)
	}
	return false, nil
}

func (b *virtualBackend) Close() error {
	for _, l := range b.listeners {
		l.Stop()
	}
	_ = b.out.Close()
	return b.io.Close()
}

// serialBackend drives a UART MIDI device via internal/serialmidi. The
// device exposes a single implicit input line, so INPUT_ID is ignored
// (there is no per-port enumeration to index into).
type serialBackend struct {
	be  *serialmidi.Backend
	buf *debounce.Buffer
}

func newSerialBackend(ctx context.Context, cfg *appConfig) (*serialBackend, error) {
	be, err := serialmidi.Open(ctx, cfg.serialDevice, cfg.serialBaud, serialTxQueueSize)
	if err != nil {
		return nil, err
	}
	return &serialBackend{be: be}, nil
}

const serialTxQueueSize = 256

func (b *serialBackend) SendTriple(status, data1, data2 byte) error {
	return b.be.SendTriple(status, data1, data2)
}

func (b *serialBackend) startInputs(ctx context.Context, owner identity.ClientId, out chan<- string, cfg *appConfig) (bool, error) {
	b.buf = debounce.New(owner, out)
	go b.buf.RunFlusher(ctx)
	go b.be.Listen(ctx, func(status, d1, d2 byte) {
		b.buf.Add(midi.Event{Status: status, Data1: d1, Data2: d2})
	})
	return false, nil
}

func (b *serialBackend) Close() error { return b.be.Close() }
