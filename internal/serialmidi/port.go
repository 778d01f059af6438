// Package serialmidi is an alternate MIDI backend for headless/embedded
// clients wired directly to a UART, selected via --midi-backend=serial
// instead of the OS-native virtual MIDI backend. Port wraps
// github.com/tarm/serial behind a small interface, the same shape used for
// raw byte-stream handling of a /dev/ttyAMA0-style MIDI UART.
package serialmidi

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openDevice opens a UART device at the given baud rate. MIDI UARTs
// conventionally run at 31250 baud; callers pick the rate since some
// USB-MIDI adapters present a virtual serial port at other speeds. It is a
// var so tests can substitute a fake Port without a real device.
var openDevice = func(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
