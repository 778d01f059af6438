// Package wire implements the fixed-size frame format exchanged between
// broker and client: a zero-padded UTF-8 payload of the shape
// "<client-id>|<body>" inside a FrameSize-byte record.
package wire

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// FrameSize is the size in bytes of every frame on the wire.
const FrameSize = 64

// Separator delimits the client-id prefix from the body.
const Separator = "|"

// ErrPayloadTooLarge is returned when an encoded payload would not fit in
// a frame once zero-padded.
var ErrPayloadTooLarge = errors.New("wire: payload exceeds frame size")

// ErrTruncated is returned by Decode when the supplied slice is not exactly
// FrameSize bytes long.
var ErrTruncated = errors.New("wire: truncated frame")

// Frame is one fixed-size record on the wire.
type Frame [FrameSize]byte

// Encode builds a frame carrying "<clientID>|<body>", zero-padded to
// FrameSize. It fails if the textual payload (including the separator)
// would not fit.
func Encode(clientID, body string) (Frame, error) {
	return PadPayload(clientID + Separator + body)
}

// PadPayload zero-pads an already-composed "<clientID>|<body>" string into a
// frame. Used by callers (e.g. the session's transmit phase, whose payloads
// the debounce buffer and chat loop compose) that hold the full payload
// rather than clientID and body separately.
func PadPayload(payload string) (Frame, error) {
	var f Frame
	if len(payload) >= FrameSize {
		return f, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), FrameSize-1)
	}
	copy(f[:], payload)
	return f, nil
}

// Decode reads bytes up to the first zero byte, decodes as UTF-8, and splits
// on Separator into (clientID, body). Decode fails only if b is not exactly
// FrameSize bytes (ErrTruncated), or the payload is not valid UTF-8 or
// carries no separator; this failure is fatal to the individual frame, not
// the session.
func Decode(b []byte) (clientID, body string, err error) {
	if len(b) != FrameSize {
		return "", "", ErrTruncated
	}
	zero := len(b)
	for i, c := range b {
		if c == 0 {
			zero = i
			break
		}
	}
	payload := b[:zero]
	if !utf8.Valid(payload) {
		return "", "", fmt.Errorf("wire: invalid utf8 payload")
	}
	s := string(payload)
	idx := strings.Index(s, Separator)
	if idx < 0 {
		return "", "", fmt.Errorf("wire: missing separator in payload %q", s)
	}
	return s[:idx], s[idx+len(Separator):], nil
}

