package song

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fretcoach/chordverify/internal/pitch"
)

func TestChordSpecFromNameMajorTriad(t *testing.T) {
	t.Parallel()
	spec, err := ChordSpecFromName("C")
	require.NoError(t, err)
	require.True(t, spec.PCs.Contains(pitch.C))
	require.True(t, spec.PCs.Contains(pitch.E))
	require.True(t, spec.PCs.Contains(pitch.G))
	require.Equal(t, 2, spec.K)
	require.NotNil(t, spec.Root)
	require.Equal(t, pitch.C, *spec.Root)
}

func TestChordSpecFromNameMinorSeventh(t *testing.T) {
	t.Parallel()
	spec, err := ChordSpecFromName("Am7")
	require.NoError(t, err)
	require.Equal(t, 4, spec.PCs.Len())
	require.True(t, spec.PCs.Contains(pitch.A))
	require.True(t, spec.PCs.Contains(pitch.C))
	require.True(t, spec.PCs.Contains(pitch.E))
	require.True(t, spec.PCs.Contains(pitch.G))
}

func TestChordSpecFromNameSharpRoot(t *testing.T) {
	t.Parallel()
	spec, err := ChordSpecFromName("C#m")
	require.NoError(t, err)
	require.Equal(t, pitch.CSharp, *spec.Root)
}

func TestChordSpecFromNameFlatRoot(t *testing.T) {
	t.Parallel()
	spec, err := ChordSpecFromName("Bb")
	require.NoError(t, err)
	require.Equal(t, pitch.ASharp, *spec.Root)
}

func TestChordSpecFromNameRejectsEmpty(t *testing.T) {
	t.Parallel()
	_, err := ChordSpecFromName("")
	require.Error(t, err)
}

func TestChordSpecFromNameRejectsUnknownRoot(t *testing.T) {
	t.Parallel()
	_, err := ChordSpecFromName("H")
	require.Error(t, err)
}

func TestChordSpecFromNameIsCached(t *testing.T) {
	t.Parallel()
	a, err := ChordSpecFromName("Gsus4")
	require.NoError(t, err)
	b, err := ChordSpecFromName("Gsus4")
	require.NoError(t, err)
	require.Equal(t, a.PCs, b.PCs)
}
