// Package session implements the client-side TCP duplex: a single loop that
// alternates a receive phase (reading inbound frames and rendering non-self
// MIDI triples) with a transmit phase (draining the outbound queue),
// mirroring the Rust client's socket read/write loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/midi"
	"github.com/purplemass/midi-fabric/internal/wire"
)

// Renderer is the subset of internal/midiio's SharedOutputConn the session
// needs: emit a parsed MIDI triple to the local output device.
type Renderer interface {
	SendTriple(status, data1, data2 byte) error
}

const (
	connectTimeout   = 5 * time.Second
	pollDeadline     = 5 * time.Millisecond
	loopPause        = time.Millisecond
)

// Sentinel errors, classified via errors.Is.
var (
	ErrConnect = errors.New("session: connect")
	ErrSevered = errors.New("session: connection severed")
)

// Session owns one TCP duplex to the broker.
type Session struct {
	ID       identity.ClientId
	conn     net.Conn
	renderer Renderer
	outbound chan string
	logger   *slog.Logger
}

// Dial connects to the broker at addr (host, port 6000 appended by caller)
// and constructs a Session ready to Run.
func Dial(addr string, id identity.ClientId, renderer Renderer, queueSize int) (*Session, error) {
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return New(conn, id, renderer, queueSize), nil
}

// New wraps an already-connected net.Conn in a Session.
func New(conn net.Conn, id identity.ClientId, renderer Renderer, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Session{
		ID:       id,
		conn:     conn,
		renderer: renderer,
		outbound: make(chan string, queueSize),
		logger:   logging.L().With("client_id", id.String()),
	}
}

// Outbound returns the send side of the outbound queue; cloned into every
// input listener and any auxiliary emitter (e.g. chat).
func (s *Session) Outbound() chan<- string { return s.outbound }

// Run drives the duplex loop until the connection fails or ctx is
// cancelled. It returns the error that ended the loop (nil on clean
// cancellation).
func (s *Session) Run(ctx context.Context) error {
	defer func() { _ = s.conn.Close() }()
	var fr wire.Frame
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.receiveOnce(&fr); err != nil {
			return err
		}
		if err := s.transmitOnce(); err != nil {
			return err
		}

		time.Sleep(loopPause)
	}
}

// receiveOnce implements one receive-phase iteration of the duplex loop.
func (s *Session) receiveOnce(fr *wire.Frame) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(pollDeadline))
	_, err := io.ReadFull(s.conn, fr[:])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
			s.logger.Info("connection_severed", "error", err)
			return fmt.Errorf("%w: %v", ErrSevered, err)
		}
		s.logger.Info("connection_severed", "error", err)
		return fmt.Errorf("%w: %v", ErrSevered, err)
	}

	id, body, err := wire.Decode(fr[:])
	if err != nil {
		metrics.IncMalformed()
		s.logger.Warn("malformed_frame", "error", err)
		return nil
	}
	if id == s.ID.String() {
		metrics.IncLoopbackSuppressed()
		return nil
	}
	metrics.IncSessionFramesIn()
	s.logger.Info("rx", "body", body)
	ev, ok := midi.ParseTriple(body)
	if !ok {
		metrics.IncMidiParseFailures()
		return nil
	}
	if err := s.renderer.SendTriple(ev.Status, ev.Data1, ev.Data2); err != nil {
		metrics.IncError(metrics.ErrMidiSend)
		s.logger.Error("midi_send_error", "error", err)
		return nil
	}
	metrics.IncMidiEventsRendered()
	return nil
}

// transmitOnce implements one transmit-phase iteration of the duplex loop.
// A write failure is fatal to the session.
func (s *Session) transmitOnce() error {
	select {
	case payload, ok := <-s.outbound:
		if !ok {
			return fmt.Errorf("%w: outbound queue closed", ErrSevered)
		}
		fr, err := wire.PadPayload(payload)
		if err != nil {
			s.logger.Error("outbound_payload_too_large", "error", err)
			return nil
		}
		if _, err := s.conn.Write(fr[:]); err != nil {
			metrics.IncError(metrics.ErrTCPWrite)
			s.logger.Error("conn_write_error", "error", err)
			return fmt.Errorf("%w: %v", ErrSevered, err)
		}
		metrics.IncSessionFramesOut()
		s.logger.Info("tx", "payload", payload)
		return nil
	default:
		return nil
	}
}
