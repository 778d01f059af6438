package main

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"github.com/purplemass/midi-fabric/internal/identity"
)

// runChatLoop reads lines from r and sends each as an opaque text frame,
// mirroring the Rust client's stdin read loop. Typing ":quit" ends the loop
// without closing the session.
func runChatLoop(r io.Reader, owner identity.ClientId, out chan<- string, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == ":quit" {
			return
		}
		if line == "" {
			continue
		}
		payload := owner.String() + "|" + line
		select {
		case out <- payload:
		default:
			logger.Warn("chat_outbound_queue_full_drop")
		}
	}
}
