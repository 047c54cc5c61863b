package aggregate

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fretcoach/chordverify/internal/pitch"
)

func byMIDI(notes []pitch.NoteEvent) []pitch.NoteEvent {
	sort.Slice(notes, func(i, j int) bool { return notes[i].MIDI < notes[j].MIDI })
	return notes
}

func TestPushDropsOldestBeyondMaxLen(t *testing.T) {
	t.Parallel()
	a := New(3)

	a.Push([]pitch.NoteEvent{{MIDI: 40, Salience: 1.0}})
	a.Push([]pitch.NoteEvent{{MIDI: 41, Salience: 1.0}})
	a.Push([]pitch.NoteEvent{{MIDI: 42, Salience: 1.0}})
	require.Equal(t, 3, a.Len())

	fused := a.Push([]pitch.NoteEvent{{MIDI: 43, Salience: 1.0}})
	require.Equal(t, 3, a.Len())

	midis := make([]int, 0)
	for _, n := range fused {
		midis = append(midis, n.MIDI)
	}
	require.ElementsMatch(t, []int{41, 42, 43}, midis, "oldest tick (midi 40) should have been dropped")
}

func TestPushAveragesSalienceForRecurringNote(t *testing.T) {
	t.Parallel()
	a := New(3)
	a.Push([]pitch.NoteEvent{{MIDI: 60, Salience: 0.2}})
	a.Push([]pitch.NoteEvent{{MIDI: 60, Salience: 0.6}})
	fused := byMIDI(a.Push([]pitch.NoteEvent{{MIDI: 60, Salience: 1.0}}))

	require.Len(t, fused, 1)
	require.InDelta(t, 0.6, fused[0].Salience, 1e-9)
}

func TestMaxLenClampedToSupportedRange(t *testing.T) {
	t.Parallel()
	require.Equal(t, 3, New(1).maxLen)
	require.Equal(t, 5, New(50).maxLen)
	require.Equal(t, 4, New(4).maxLen)
}

func TestResetClearsHistory(t *testing.T) {
	t.Parallel()
	a := New(3)
	a.Push([]pitch.NoteEvent{{MIDI: 60, Salience: 0.5}})
	a.Reset()
	require.Equal(t, 0, a.Len())
	require.Empty(t, a.Fused())
}
