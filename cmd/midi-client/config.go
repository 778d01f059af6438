package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const serverPort = "6000"

type appConfig struct {
	serverIP          string
	outputID          int
	hasInputID        bool
	inputID           int
	discover          bool
	midiBackend       string
	serialDevice      string
	serialBaud        int
	outputMode        string
	virtualOutputName string
	chat              bool
	logFormat         string
	logLevel          string
	metricsAddr       string
	clientIDStr       string
}

// parseFlags implements the client's CLI surface
// (`<program> <SERVER_IP> <OUTPUT_ID> [<INPUT_ID>]`), extended with
// backend selection, discovery, chat, and observability flags. Positional
// args come after any flags.
func parseFlags(args []string) (*appConfig, bool, error) {
	fs := flag.NewFlagSet("midi-client", flag.ContinueOnError)
	discover := fs.Bool("discover", false, "Resolve the broker address via mDNS instead of a positional SERVER_IP")
	midiBackend := fs.String("midi-backend", "virtual", "MIDI backend: virtual|serial")
	serialDevice := fs.String("serial-device", "/dev/ttyAMA0", "UART device path (--midi-backend=serial)")
	serialBaud := fs.Int("serial-baud", 31250, "UART baud rate (--midi-backend=serial)")
	outputMode := fs.String("output-mode", "real", "Output port selection: real (OUTPUT_ID indexes an enumerated hardware port) or virtual (create a new virtual output for DAW routing; OUTPUT_ID is ignored)")
	virtualOutputName := fs.String("virtual-output-name", "", "Name of the created virtual output (--output-mode=virtual); default midi-fabric-out")
	chat := fs.Bool("chat", false, "Also read lines from stdin and send them as opaque text frames")
	logFormat := fs.String("log-format", "text", "Log format: text|json")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9101); empty disables")
	clientID := fs.String("client-id", "", "Override the auto-minted ClientId (primarily for tests)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg := &appConfig{
		discover:          *discover,
		midiBackend:       *midiBackend,
		serialDevice:      *serialDevice,
		serialBaud:        *serialBaud,
		outputMode:        *outputMode,
		virtualOutputName: *virtualOutputName,
		chat:              *chat,
		logFormat:         *logFormat,
		logLevel:          *logLevel,
		metricsAddr:       *metricsAddr,
		clientIDStr:       *clientID,
	}

	rest := fs.Args()
	if cfg.discover {
		if len(rest) < 1 {
			return nil, *showVersion, errors.New("usage: midi-client [flags] [SERVER_IP] OUTPUT_ID [INPUT_ID]  (SERVER_IP optional with --discover)")
		}
	} else if len(rest) < 2 {
		return nil, *showVersion, errors.New("usage: midi-client [flags] SERVER_IP OUTPUT_ID [INPUT_ID]")
	}

	idx := 0
	if !cfg.discover {
		cfg.serverIP = rest[idx]
		idx++
	} else if len(rest) > 0 {
		// With --discover an explicit SERVER_IP still wins if the operator
		// supplied one (discovery is additive, not exclusive).
		if _, err := strconv.Atoi(rest[idx]); err != nil {
			cfg.serverIP = rest[idx]
			idx++
		}
	}

	outID, err := strconv.Atoi(rest[idx])
	if err != nil {
		return nil, *showVersion, fmt.Errorf("invalid OUTPUT_ID %q: %w", rest[idx], err)
	}
	cfg.outputID = outID
	idx++

	if idx < len(rest) {
		inID, err := strconv.Atoi(rest[idx])
		if err != nil {
			return nil, *showVersion, fmt.Errorf("invalid INPUT_ID %q: %w", rest[idx], err)
		}
		cfg.inputID = inID
		cfg.hasInputID = true
	}

	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, *showVersion, err
	}
	if err := cfg.validate(); err != nil {
		return nil, *showVersion, err
	}
	return cfg, *showVersion, nil
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if !c.discover && c.serverIP == "" {
		return errors.New("SERVER_IP is required unless --discover is set")
	}
	if c.outputID < 0 {
		return fmt.Errorf("OUTPUT_ID must be >= 0 (got %d)", c.outputID)
	}
	if c.hasInputID && c.inputID < 0 {
		return fmt.Errorf("INPUT_ID must be >= 0 (got %d)", c.inputID)
	}
	switch c.midiBackend {
	case "virtual", "serial":
	default:
		return fmt.Errorf("invalid midi-backend: %s", c.midiBackend)
	}
	switch c.outputMode {
	case "real", "virtual":
	default:
		return fmt.Errorf("invalid output-mode: %s", c.outputMode)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.serialBaud <= 0 {
		return fmt.Errorf("serial-baud must be > 0 (got %d)", c.serialBaud)
	}
	return nil
}

// brokerAddr appends the conventional broker port to the resolved host.
func (c *appConfig) brokerAddr() string {
	return c.serverIP + ":" + serverPort
}

// applyEnvOverrides maps MIDI_CLIENT_* environment variables onto fields
// that have no positional-argument equivalent, unless the corresponding
// flag was explicitly set. Flag wins over env.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("MIDI_CLIENT_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("MIDI_CLIENT_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("MIDI_CLIENT_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["midi-backend"]; !ok {
		if v, ok := get("MIDI_CLIENT_MIDI_BACKEND"); ok && v != "" {
			c.midiBackend = v
		}
	}
	if _, ok := set["serial-device"]; !ok {
		if v, ok := get("MIDI_CLIENT_SERIAL_DEVICE"); ok && v != "" {
			c.serialDevice = v
		}
	}
	if _, ok := set["output-mode"]; !ok {
		if v, ok := get("MIDI_CLIENT_OUTPUT_MODE"); ok && v != "" {
			c.outputMode = v
		}
	}
	if _, ok := set["virtual-output-name"]; !ok {
		if v, ok := get("MIDI_CLIENT_VIRTUAL_OUTPUT_NAME"); ok && v != "" {
			c.virtualOutputName = v
		}
	}
	if _, ok := set["serial-baud"]; !ok {
		if v, ok := get("MIDI_CLIENT_SERIAL_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.serialBaud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MIDI_CLIENT_SERIAL_BAUD: %w", err)
			}
		}
	}
	return firstErr
}
