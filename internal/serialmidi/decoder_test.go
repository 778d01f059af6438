package serialmidi

import (
	"testing"

	"github.com/purplemass/midi-fabric/internal/midi"
)

func TestDecoderFeedExtractsCompleteEvents(t *testing.T) {
	var got []midi.Event
	d := &decoder{}
	d.feed([]byte{0x90, 60, 127, 0x80, 60, 0}, func(ev midi.Event) {
		got = append(got, ev)
	})
	want := []midi.Event{
		{Status: 0x90, Data1: 60, Data2: 127},
		{Status: 0x80, Data1: 60, Data2: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestDecoderFeedBuffersPartialMessageAcrossReads(t *testing.T) {
	var got []midi.Event
	d := &decoder{}
	d.feed([]byte{0xB0, 0x0A}, func(ev midi.Event) { got = append(got, ev) })
	if len(got) != 0 {
		t.Fatalf("expected no events from a partial message, got %+v", got)
	}
	d.feed([]byte{64}, func(ev midi.Event) { got = append(got, ev) })
	if len(got) != 1 || got[0] != (midi.Event{Status: 0xB0, Data1: 0x0A, Data2: 64}) {
		t.Fatalf("expected the completed message once the rest arrived, got %+v", got)
	}
}

func TestDecoderFeedResyncsPastStrayBytes(t *testing.T) {
	var got []midi.Event
	d := &decoder{}
	// Two stray data bytes before a valid status byte should be dropped, not
	// misread as the start of a bogus message.
	d.feed([]byte{1, 2, 0x90, 60, 100}, func(ev midi.Event) { got = append(got, ev) })
	if len(got) != 1 || got[0] != (midi.Event{Status: 0x90, Data1: 60, Data2: 100}) {
		t.Fatalf("expected resync to find the one valid event, got %+v", got)
	}
}

func TestThreeByteStatus(t *testing.T) {
	for _, b := range []byte{0x80, 0x90, 0xA0, 0xB0, 0xE0} {
		if !threeByteStatus(b) {
			t.Fatalf("0x%X should be a 3-byte status", b)
		}
	}
	for _, b := range []byte{0x00, 0x7F, 0xC0, 0xD0, 0xF0} {
		if threeByteStatus(b) {
			t.Fatalf("0x%X should not be treated as a 3-byte status", b)
		}
	}
}
