package song

import (
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/fretcoach/chordverify/internal/pitch"
)

// PreviewEvent is one timed MIDI message in a rendered song preview.
type PreviewEvent struct {
	At  time.Duration
	Msg midi.Message
}

// defaultOctaveMIDI is the MIDI note number of pitch class C in the octave
// chords are voiced in for preview playback (C4 = 60).
const defaultOctaveMIDI = 60

// Preview renders s as a sequence of timed NoteOn/NoteOff pairs, one chord
// strummed per entry and held for its beat count at the song's tempo. It is
// meant to be fed to a gomidi output driver for audible practice playback,
// not to drive the verifier itself.
func (s *Song) Preview() []PreviewEvent {
	if s.TempoBPM <= 0 {
		s.TempoBPM = 120
	}
	beatDur := time.Minute / time.Duration(s.TempoBPM)

	var events []PreviewEvent
	var cursor time.Duration
	const channel = 0
	const velocity = 90

	for _, entry := range s.Entries {
		notes := chordMIDINotes(entry.Spec.PCs.Slice())
		for _, n := range notes {
			events = append(events, PreviewEvent{At: cursor, Msg: midi.NoteOn(channel, n, velocity)})
		}
		hold := beatDur * time.Duration(entry.Beat)
		offAt := cursor + hold
		for _, n := range notes {
			events = append(events, PreviewEvent{At: offAt, Msg: midi.NoteOff(channel, n)})
		}
		cursor = offAt
	}
	return events
}

// chordMIDINotes voices each pitch class at or above defaultOctaveMIDI,
// ascending, so the rendered chord reads low-to-high.
func chordMIDINotes(pcs []pitch.Class) []uint8 {
	notes := make([]uint8, len(pcs))
	for i, pc := range pcs {
		notes[i] = uint8(defaultOctaveMIDI + int(pc))
	}
	return notes
}
