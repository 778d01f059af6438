// Package debounce implements a per-input-port coalescing buffer: note-class
// MIDI messages bypass coalescing and are sent immediately, while CC-like
// bursts are throttled to "last value wins" within a coalescing window.
// Mirrors the BUFFER_TIME/NOTES/tail-send-and-reset shape of the Rust
// client's midi buffer, restructured around a dedicated flusher goroutine.
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/midi"
)

// Default timing constants.
const (
	BufferTime         = 100 * time.Millisecond
	BufferMonitorDelay = 10 * time.Millisecond
)

// Buffer is a per-input-port coalescing queue. Mutual exclusion is shared
// only between the MIDI callback (Add) and the paired flusher goroutine.
type Buffer struct {
	mu         sync.Mutex
	owner      identity.ClientId
	queue      []string
	lastFlush  time.Time
	bufferTime time.Duration
	out        chan<- string
	logger     *slog.Logger
}

// New constructs a Buffer for the given owner, sending composed payloads to
// out (the session's OutboundQueue).
func New(owner identity.ClientId, out chan<- string) *Buffer {
	return &Buffer{
		owner:      owner,
		lastFlush:  time.Now(),
		bufferTime: BufferTime,
		out:        out,
		logger:     logging.L(),
	}
}

// Add implements the add(tx, msg) rule: note-class messages, or any message
// arriving after the coalescing window has elapsed, are sent immediately
// and reset the buffer; everything else is queued.
func (b *Buffer) Add(ev midi.Event) {
	payload := b.owner.String() + "|" + ev.String()

	b.mu.Lock()
	immediate := midi.IsNote(ev.Status) || time.Since(b.lastFlush) >= b.bufferTime
	if immediate {
		b.resetLocked()
	} else {
		b.queue = append(b.queue, payload)
	}
	b.mu.Unlock()

	if immediate {
		if midi.IsNote(ev.Status) {
			metrics.IncDebounceNotesImmediate()
		}
		b.send(payload)
	} else {
		metrics.IncDebounceCoalesced()
	}
}

// reset empties the queue and stamps last_flush to now.
func (b *Buffer) reset() {
	b.mu.Lock()
	b.resetLocked()
	b.mu.Unlock()
}

func (b *Buffer) resetLocked() {
	b.queue = b.queue[:0]
	b.lastFlush = time.Now()
}

func (b *Buffer) send(payload string) {
	select {
	case b.out <- payload:
	default:
		b.logger.Warn("outbound_queue_full_drop", "owner", b.owner.String())
	}
}

// RunFlusher runs the paired flusher task: every BufferMonitorDelay, if the
// queue is non-empty, send only the last-appended element and reset. Blocks
// until ctx is cancelled.
func (b *Buffer) RunFlusher(ctx context.Context) {
	t := time.NewTicker(BufferMonitorDelay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.flushTail()
		}
	}
}

func (b *Buffer) flushTail() {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	tail := b.queue[len(b.queue)-1]
	b.resetLocked()
	b.mu.Unlock()

	metrics.IncDebounceFlushed()
	b.send(tail)
}
