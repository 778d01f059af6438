// Package broker implements the TCP relay: an
// accept loop that registers peers with a hub.Hub, one reader goroutine per
// peer pushing decoded frames onto a single broadcast channel, and one
// dispatcher goroutine draining that channel and fanning each frame out to
// every registered peer (hub.Hub.Broadcast prunes failed writes).
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/purplemass/midi-fabric/internal/hub"
	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/wire"
)

const (
	defaultReadDeadline  = 60 * time.Second
	defaultBroadcastBuf  = 256
)

// Server owns the TCP listener and coordinates peer lifecycle.
type Server struct {
	mu           sync.RWMutex
	addr         string
	Hub          *hub.Hub
	readDeadline time.Duration
	maxClients   int
	broadcastCh  chan wire.Frame

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	listener  net.Listener
	wg        sync.WaitGroup
	logger    *slog.Logger
	nextConnID uint64

	totalAccepted     atomic.Uint64
	totalConnected    atomic.Uint64
	totalDisconnected atomic.Uint64
	totalRejected     atomic.Uint64
}

type ServerOption func(*Server)

// NewServer builds a Server with defaults, applying the given options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readDeadline: defaultReadDeadline,
		readyCh:      make(chan struct{}),
		errCh:        make(chan error, 1),
		broadcastCh:  make(chan wire.Frame, defaultBroadcastBuf),
		logger:       logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	if s.Hub == nil {
		s.Hub = hub.New()
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithHub(h *hub.Hub) ServerOption      { return func(s *Server) { s.Hub = h } }
func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}
func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}
func WithBroadcastBuf(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.broadcastCh = make(chan wire.Frame, n)
		}
	}
}
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) SetListenAddr(a string) { s.setAddr(a) }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// Serve accepts peers and runs the dispatcher loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	if addr == "" {
		addr = ":0"
	}
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	if s.readyCh != nil {
		s.readyOnce.Do(func() { close(s.readyCh) })
	}
	s.logger.Info("tcp_listen", "addr", s.Addr())

	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(100 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	if s.maxClients > 0 && s.Hub.Count() >= s.maxClients {
		s.totalRejected.Add(1)
		connLogger.Warn("peer_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}
	peer := &hub.Peer{ID: identity.New(), Conn: conn, Closed: make(chan struct{})}
	s.Hub.Add(peer)
	s.totalConnected.Add(1)
	connLogger.Info("peer_connected", "client_id", peer.ID.String())
	s.startReader(ctx.Done(), peer, connLogger)
	return nil
}

// dispatchLoop drains the broadcast channel and fans each frame out to every
// registered peer. Dispatch is serialized: frames from
// one source are written to all peers in the order received.
func (s *Server) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case fr := <-s.broadcastCh:
			s.Hub.Broadcast(fr)
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown gracefully closes the listener and all connected peers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, p := range s.Hub.Snapshot() {
		s.Hub.Remove(p)
		s.totalDisconnected.Add(1)
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load(),
			"rejected", s.totalRejected.Load())
		return nil
	}
}
