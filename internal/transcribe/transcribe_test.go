package transcribe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrepareZeroPadsShortInput(t *testing.T) {
	t.Parallel()
	in := []float32{1, 2, 3}
	out := Prepare(in)
	require.Len(t, out, WindowSamples)
	require.Equal(t, []float32{1, 2, 3}, out[WindowSamples-3:])
	require.Equal(t, float32(0), out[0])
}

func TestPrepareTakesTrailingSubrangeForLongInput(t *testing.T) {
	t.Parallel()
	in := make([]float32, WindowSamples+5)
	for i := range in {
		in[i] = float32(i)
	}
	out := Prepare(in)
	require.Len(t, out, WindowSamples)
	require.Equal(t, float32(5), out[0])
	require.Equal(t, float32(len(in)-1), out[len(out)-1])
}

func TestPrepareIsIdentityAtExactLength(t *testing.T) {
	t.Parallel()
	in := make([]float32, WindowSamples)
	in[10] = 0.5
	out := Prepare(in)
	require.Equal(t, in, out)
}

func newTestModel() *Model {
	m := &Model{cfg: ModelConfig{OnsetThreshold: 0.5, PitchThreshold: 0.3, FrameHopSec: 0.01}}
	return m
}

func TestFramesToNotesGroupsContiguousActivationsFromOnset(t *testing.T) {
	t.Parallel()
	m := newTestModel()
	const bins = 128
	frames := 3
	pitchAct := make([]float32, frames*bins)
	onset := make([]float32, frames*bins)

	bin := 60
	onset[0*bins+bin] = 0.9
	pitchAct[0*bins+bin] = 0.9
	pitchAct[1*bins+bin] = 0.6
	pitchAct[2*bins+bin] = 0.2 // below pitch threshold, closes the group

	notes, err := m.framesToNotes(pitchAct, onset)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, bin, notes[0].MIDI)
	require.InDelta(t, 0.9, notes[0].Salience, 1e-9)
}

func TestFramesToNotesRejectsMismatchedLengths(t *testing.T) {
	t.Parallel()
	m := newTestModel()
	_, err := m.framesToNotes(make([]float32, 128), make([]float32, 64))
	require.Error(t, err)
	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
}

func TestFramesToNotesEmptyInputProducesNoNotes(t *testing.T) {
	t.Parallel()
	m := newTestModel()
	notes, err := m.framesToNotes(nil, nil)
	require.NoError(t, err)
	require.Empty(t, notes)
}
