package midiio

import "testing"

func TestExcludedFiltersSelfAndDAWLoopback(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"midi-fabric virtual output", true},
		{"Traktor Virtual Input", true},
		{"Traktor Virtual Output", true},
		{"USB MIDI Keyboard", false},
		{"IAC Driver Bus 1", false},
	}
	for _, c := range cases {
		if got := excluded(c.name); got != c.want {
			t.Fatalf("excluded(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
