// Package midiio binds a create/enumerate/open-output/send/listen contract
// to gitlab.com/gomidi/midi/v2 and its rtmididrv backend — the idiomatic
// Go counterpart of the Rust midir crate the reference Rust client depends
// on throughout its MIDI and socket handling.
package midiio

import (
	"fmt"
	"strings"
	"sync"

	midilib "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// SelfSignature marks the name this client gives its own virtual output, so
// self-port filtering can exclude it from enumeration.
const SelfSignature = "midi-fabric"

// excludedNames lists well-known DAW virtual-loopback port names excluded
// alongside self-created ports.
var excludedNames = []string{"Traktor Virtual Input", "Traktor Virtual Output"}

// Port is one filtered, enumerable MIDI port.
type Port struct {
	Index int
	Name  string
}

// IO owns the platform MIDI driver handle.
type IO struct {
	drv *rtmididrv.Driver
}

// Open constructs the platform MIDI driver (the "MidiInput"/"MidiOutput"
// handle other packages build on).
func Open() (*IO, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midiio: open driver: %w", err)
	}
	return &IO{drv: drv}, nil
}

// Close releases the driver handle.
func (io *IO) Close() error { return io.drv.Close() }

// Enumerate returns the filtered input/output port lists: self-created
// virtual ports and well-known DAW loopback names are excluded from both
// lists to prevent feedback.
func (io *IO) Enumerate() (ins, outs []Port, err error) {
	rawIns, err := io.drv.Ins()
	if err != nil {
		return nil, nil, fmt.Errorf("midiio: list inputs: %w", err)
	}
	rawOuts, err := io.drv.Outs()
	if err != nil {
		return nil, nil, fmt.Errorf("midiio: list outputs: %w", err)
	}
	for i, p := range rawIns {
		name := p.String()
		if excluded(name) {
			continue
		}
		ins = append(ins, Port{Index: i, Name: name})
	}
	for i, p := range rawOuts {
		name := p.String()
		if excluded(name) {
			continue
		}
		outs = append(outs, Port{Index: i, Name: name})
	}
	return ins, outs, nil
}

func excluded(name string) bool {
	if strings.Contains(name, SelfSignature) {
		return true
	}
	for _, n := range excludedNames {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

// SharedOutputConn is a MIDI output connection under exclusive-at-a-time
// access, shared by the session's receive phase and any auxiliary
// synchronous note emitters.
type SharedOutputConn struct {
	mu   sync.Mutex
	send func(midilib.Message) error
	out  midilib.OutPort
}

// OpenVirtualOutput creates a named virtual MIDI output so a local DAW can
// subscribe to remote events.
func (io *IO) OpenVirtualOutput(name string) (*SharedOutputConn, error) {
	out, err := io.drv.OpenVirtualOut(name)
	if err != nil {
		return nil, fmt.Errorf("midiio: open virtual output: %w", err)
	}
	send, err := midilib.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("midiio: bind sender: %w", err)
	}
	return &SharedOutputConn{send: send, out: out}, nil
}

// OpenRealOutput opens the hardware output port p, addressed by p.Index,
// its position in the driver's unfiltered output list.
func (io *IO) OpenRealOutput(p Port) (*SharedOutputConn, error) {
	rawOuts, err := io.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("midiio: list outputs: %w", err)
	}
	if p.Index < 0 || p.Index >= len(rawOuts) {
		return nil, fmt.Errorf("midiio: output index %d out of range", p.Index)
	}
	out := rawOuts[p.Index]
	send, err := midilib.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("midiio: bind sender: %w", err)
	}
	return &SharedOutputConn{send: send, out: out}, nil
}

// SendTriple acquires exclusive access to the connection, transmits the
// three bytes, and releases it. Also doubles as the single-note helper the
// Rust client calls play_single_note.
func (c *SharedOutputConn) SendTriple(status, data1, data2 byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(midilib.Message{status, data1, data2}); err != nil {
		return fmt.Errorf("midiio: send: %w", err)
	}
	return nil
}

// Close releases the output connection.
func (c *SharedOutputConn) Close() error { return c.out.Close() }

// Listen installs a callback on the given input port forwarding each 3-byte
// MIDI message. The returned stop function detaches the callback and is
// safe to call once.
func (io *IO) Listen(p Port, onMessage func(status, data1, data2 byte)) (stop func(), err error) {
	rawIns, err := io.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midiio: list inputs: %w", err)
	}
	if p.Index < 0 || p.Index >= len(rawIns) {
		return nil, fmt.Errorf("midiio: input index %d out of range", p.Index)
	}
	stopFn, err := midilib.ListenTo(rawIns[p.Index], func(msg midilib.Message, _ int32) {
		if len(msg) < 3 {
			return
		}
		onMessage(msg[0], msg[1], msg[2])
	})
	if err != nil {
		return nil, fmt.Errorf("midiio: listen: %w", err)
	}
	return stopFn, nil
}
