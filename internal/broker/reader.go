package broker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/purplemass/midi-fabric/internal/hub"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/wire"
)

// startReader spawns the per-peer reader task: read
// exactly FrameSize bytes, validate the payload, push the frame onto the
// broadcast channel. Any read error other than a timeout ends the peer's
// participation; the peer is then removed from the hub.
func (s *Server) startReader(ctxDone <-chan struct{}, p *hub.Peer, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.Hub.Remove(p)
		var fr wire.Frame
		for {
			_ = p.Conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			if _, err := io.ReadFull(p.Conn, fr[:]); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
					logger.Info("peer_closed")
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					select {
					case <-ctxDone:
						return
					default:
						continue
					}
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			if _, _, err := wire.Decode(fr[:]); err != nil {
				metrics.IncMalformed()
				logger.Warn("malformed_frame", "error", err)
				select {
				case <-ctxDone:
					return
				default:
					continue
				}
			}
			metrics.IncBrokerFramesIn()
			select {
			case s.broadcastCh <- fr:
			case <-ctxDone:
				return
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
