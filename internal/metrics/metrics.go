package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/purplemass/midi-fabric/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	BrokerFramesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_frames_in_total",
		Help: "Total frames read from TCP peers by the broker.",
	})
	BrokerFramesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_frames_out_total",
		Help: "Total frames written to TCP peers by the broker dispatcher.",
	})
	SessionFramesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_frames_in_total",
		Help: "Total frames read by a client session from the broker.",
	})
	SessionFramesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_frames_out_total",
		Help: "Total frames written by a client session to the broker.",
	})
	LoopbackSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_loopback_suppressed_total",
		Help: "Total inbound frames discarded because they originated from this client.",
	})
	MidiEventsRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "midi_events_rendered_total",
		Help: "Total MIDI events parsed from inbound frames and sent to the output device.",
	})
	MidiParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "midi_parse_failures_total",
		Help: "Total inbound frame bodies that did not parse as a MIDI triple (e.g. chat text).",
	})
	DebounceCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debounce_coalesced_total",
		Help: "Total non-note MIDI messages absorbed into the debounce buffer instead of sent immediately.",
	})
	DebounceNotesImmediate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debounce_notes_immediate_total",
		Help: "Total note-class MIDI messages that bypassed coalescing and were sent immediately.",
	})
	DebounceFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debounce_flushed_total",
		Help: "Total frames emitted by the debounce flusher (tail-of-queue sends).",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_peers_total",
		Help: "Total peers pruned by the broker dispatcher after a failed write.",
	})
	HubActivePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_peers",
		Help: "Current number of connected broker peers.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of peers targeted in the most recent broadcast.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total frames rejected for protocol violations (bad size, invalid utf8, missing separator).",
	})
	SerialEventsTx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_events_tx_total",
		Help: "Total MIDI triples written to the serial backend.",
	})
	SerialEventsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_events_rx_total",
		Help: "Total MIDI triples read from the serial backend.",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTCPRead    = "tcp_read"
	ErrTCPWrite   = "tcp_write"
	ErrMidiSend   = "midi_send"
	ErrMidiDevice = "midi_device"
	ErrSerialRead     = "serial_read"
	ErrSerialSend     = "serial_send"
	ErrSerialOverflow = "serial_overflow"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap in-process logging (avoid Prometheus scraping internally).
var (
	localFramesIn  uint64
	localFramesOut uint64
	localLoopback  uint64
	localRendered  uint64
	localParseFail uint64
	localCoalesced uint64
	localNotes     uint64
	localFlushed   uint64
	localHubDrop   uint64
	localHubPeers  uint64
	localFanout    uint64
	localErrors    uint64
	localMalformed uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesIn  uint64
	FramesOut uint64
	Loopback  uint64
	Rendered  uint64
	ParseFail uint64
	Coalesced uint64
	Notes     uint64
	Flushed   uint64
	HubDrops  uint64
	HubPeers  uint64
	Fanout    uint64
	Errors    uint64
	Malformed uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesIn:  atomic.LoadUint64(&localFramesIn),
		FramesOut: atomic.LoadUint64(&localFramesOut),
		Loopback:  atomic.LoadUint64(&localLoopback),
		Rendered:  atomic.LoadUint64(&localRendered),
		ParseFail: atomic.LoadUint64(&localParseFail),
		Coalesced: atomic.LoadUint64(&localCoalesced),
		Notes:     atomic.LoadUint64(&localNotes),
		Flushed:   atomic.LoadUint64(&localFlushed),
		HubDrops:  atomic.LoadUint64(&localHubDrop),
		HubPeers:  atomic.LoadUint64(&localHubPeers),
		Fanout:    atomic.LoadUint64(&localFanout),
		Errors:    atomic.LoadUint64(&localErrors),
		Malformed: atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers to keep call sites simple.
func IncBrokerFramesIn() {
	BrokerFramesIn.Inc()
	atomic.AddUint64(&localFramesIn, 1)
}

func IncBrokerFramesOut() {
	BrokerFramesOut.Inc()
	atomic.AddUint64(&localFramesOut, 1)
}

func IncSessionFramesIn() { SessionFramesIn.Inc() }

func IncSessionFramesOut() { SessionFramesOut.Inc() }

func IncLoopbackSuppressed() {
	LoopbackSuppressed.Inc()
	atomic.AddUint64(&localLoopback, 1)
}

func IncMidiEventsRendered() {
	MidiEventsRendered.Inc()
	atomic.AddUint64(&localRendered, 1)
}

func IncMidiParseFailures() {
	MidiParseFailures.Inc()
	atomic.AddUint64(&localParseFail, 1)
}

func IncDebounceCoalesced() {
	DebounceCoalesced.Inc()
	atomic.AddUint64(&localCoalesced, 1)
}

func IncDebounceNotesImmediate() {
	DebounceNotesImmediate.Inc()
	atomic.AddUint64(&localNotes, 1)
}

func IncDebounceFlushed() {
	DebounceFlushed.Inc()
	atomic.AddUint64(&localFlushed, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func SetHubPeers(n int) {
	HubActivePeers.Set(float64(n))
	atomic.StoreUint64(&localHubPeers, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncSerialTx() { SerialEventsTx.Inc() }

func IncSerialRx() { SerialEventsRx.Inc() }

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrTCPRead, ErrTCPWrite, ErrMidiSend, ErrMidiDevice, ErrSerialRead, ErrSerialSend, ErrSerialOverflow} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
