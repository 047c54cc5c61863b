package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fretcoach/chordverify/internal/pitch"
)

func defaultSettings() Settings {
	return Settings{
		SalienceThreshold: 0.2,
		AcceptInversions:  true,
		PolicyKind:        KOfN,
		FramesConfirm:     3,
		MissCooldown:      250 * time.Millisecond,
	}
}

func eMinorNotes() []pitch.NoteEvent {
	return []pitch.NoteEvent{
		{MIDI: 52, Salience: 0.8}, // E3
		{MIDI: 55, Salience: 0.8}, // G3
		{MIDI: 59, Salience: 0.8}, // B3
	}
}

func TestKOfNMatchAfterFramesConfirm(t *testing.T) {
	t.Parallel()
	e := NewEngine(defaultSettings())
	root := pitch.E
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.E, pitch.G, pitch.B), K: 2, Root: &root}))

	base := time.Unix(0, 0)
	var outcomes []Outcome
	for i := 0; i < 3; i++ {
		outcomes = append(outcomes, e.Evaluate(eMinorNotes(), base.Add(time.Duration(i)*40*time.Millisecond)))
	}

	require.False(t, outcomes[0].Matched)
	require.False(t, outcomes[1].Matched)
	require.True(t, outcomes[2].Matched)

	// No second Match while the chord keeps sustaining beyond confirmation.
	next := e.Evaluate(eMinorNotes(), base.Add(4*40*time.Millisecond))
	require.False(t, next.Matched)
}

func TestPartialMatchEmitsMissWithDiagnostics(t *testing.T) {
	t.Parallel()
	e := NewEngine(defaultSettings())
	root := pitch.E
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.E, pitch.G, pitch.B), K: 2, Root: &root}))

	notes := []pitch.NoteEvent{{MIDI: 52, Salience: 0.8}, {MIDI: 55, Salience: 0.8}} // E3 + G3 only

	base := time.Unix(0, 0)
	out := e.Evaluate(notes, base)
	require.True(t, out.Missed)
	require.ElementsMatch(t, []pitch.Class{pitch.E, pitch.G}, out.Matches.Slice())
	require.ElementsMatch(t, []pitch.Class{pitch.B}, out.Missing.Slice())
}

func TestMissDebounceRespectsCooldown(t *testing.T) {
	t.Parallel()
	e := NewEngine(defaultSettings())
	root := pitch.E
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.E, pitch.G, pitch.B), K: 2, Root: &root}))

	notes := []pitch.NoteEvent{{MIDI: 52, Salience: 0.8}}

	base := time.Unix(0, 0)
	first := e.Evaluate(notes, base)
	require.True(t, first.Missed)

	second := e.Evaluate(notes, base.Add(50*time.Millisecond))
	require.False(t, second.Missed, "second miss within cooldown window must be suppressed")

	third := e.Evaluate(notes, base.Add(300*time.Millisecond))
	require.True(t, third.Missed)
}

func TestInversionRejection(t *testing.T) {
	t.Parallel()
	settings := defaultSettings()
	settings.AcceptInversions = false
	e := NewEngine(settings)
	root := pitch.C
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.C, pitch.E, pitch.G), K: 3, Root: &root}))

	// G2 + C3 + E3: all pitch classes present but bass is G, not C.
	notes := []pitch.NoteEvent{{MIDI: 43, Salience: 0.8}, {MIDI: 48, Salience: 0.8}, {MIDI: 52, Salience: 0.8}}

	base := time.Unix(0, 0)
	var sawMatch bool
	for i := 0; i < 5; i++ {
		out := e.Evaluate(notes, base.Add(time.Duration(i)*300*time.Millisecond))
		if out.Matched {
			sawMatch = true
		}
		if out.Missed {
			require.Empty(t, out.Missing.Slice())
			require.ElementsMatch(t, []pitch.Class{pitch.C, pitch.E, pitch.G}, out.Matches.Slice())
		}
	}
	require.False(t, sawMatch, "bass mismatch must never confirm a match when inversions are rejected")
}

func TestCapoTranspositionMatches(t *testing.T) {
	t.Parallel()
	settings := defaultSettings()
	settings.TransposeSemitones = 2
	e := NewEngine(settings)
	root := pitch.C
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.C, pitch.E, pitch.G), K: 2, Root: &root}))

	// D3 + F#3 + A3, transposed down 2 semitones, reduces to C major.
	notes := []pitch.NoteEvent{{MIDI: 50, Salience: 0.8}, {MIDI: 54, Salience: 0.8}, {MIDI: 57, Salience: 0.8}}

	base := time.Unix(0, 0)
	var matched bool
	for i := 0; i < 3; i++ {
		if e.Evaluate(notes, base.Add(time.Duration(i)*40*time.Millisecond)).Matched {
			matched = true
		}
	}
	require.True(t, matched)
}

func TestSetExpectedResetsConfirmation(t *testing.T) {
	t.Parallel()
	e := NewEngine(defaultSettings())
	root := pitch.E
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.E, pitch.G, pitch.B), K: 2, Root: &root}))

	base := time.Unix(0, 0)
	e.Evaluate(eMinorNotes(), base)
	e.Evaluate(eMinorNotes(), base.Add(40*time.Millisecond))

	newRoot := pitch.A
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.A, pitch.C, pitch.E), K: 2, Root: &newRoot}))

	out := e.Evaluate(eMinorNotes(), base.Add(200*time.Millisecond))
	require.False(t, out.Matched, "no spurious match immediately after a target switch")
	if out.Missed {
		require.ElementsMatch(t, []pitch.Class{pitch.E}, out.Matches.Slice())
	}
}

func TestKEqualsOneSingleNoteChord(t *testing.T) {
	t.Parallel()
	e := NewEngine(defaultSettings())
	root := pitch.G
	require.NoError(t, e.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.G), K: 1, Root: &root}))

	base := time.Unix(0, 0)
	present := []pitch.NoteEvent{{MIDI: 55, Salience: 0.8}}
	absent := []pitch.NoteEvent{{MIDI: 50, Salience: 0.8}}

	var matched bool
	for i := 0; i < 3; i++ {
		if e.Evaluate(present, base.Add(time.Duration(i)*40*time.Millisecond)).Matched {
			matched = true
		}
	}
	require.True(t, matched)

	e2 := NewEngine(defaultSettings())
	require.NoError(t, e2.SetExpected(ChordSpec{PCs: pitch.NewSet(pitch.G), K: 1, Root: &root}))
	for i := 0; i < 3; i++ {
		require.False(t, e2.Evaluate(absent, base.Add(time.Duration(i)*40*time.Millisecond)).Matched)
	}
}

func TestValidateRejectsEmptyPCsAndBadK(t *testing.T) {
	t.Parallel()
	require.Error(t, ChordSpec{PCs: pitch.NewSet(), K: 1}.Validate())
	require.Error(t, ChordSpec{PCs: pitch.NewSet(pitch.C), K: 2}.Validate())
	require.NoError(t, ChordSpec{PCs: pitch.NewSet(pitch.C), K: 1}.Validate())
}
