package pitch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromMIDIOctaveInvariance(t *testing.T) {
	t.Parallel()
	for m := 0; m < 24; m++ {
		for k := -2; k <= 2; k++ {
			require.Equal(t, FromMIDI(m, 0), FromMIDI(m+12*k, 0), "m=%d k=%d", m, k)
		}
	}
}

func TestFromMIDITranspose(t *testing.T) {
	t.Parallel()
	// D major root (62) transposed down 2 semitones reduces to C (class 0).
	require.Equal(t, C, FromMIDI(62, -2))
}

func TestFromMIDINegativeWraps(t *testing.T) {
	t.Parallel()
	require.Equal(t, B, FromMIDI(0, -1))
}

func TestSetIntersectAndDifference(t *testing.T) {
	t.Parallel()
	expected := NewSet(E, G, B)
	detected := NewSet(E, G)

	matched := expected.Intersect(detected)
	missing := expected.Difference(detected)

	require.ElementsMatch(t, []Class{E, G}, matched.Slice())
	require.ElementsMatch(t, []Class{B}, missing.Slice())
	require.Equal(t, expected.Len(), matched.Len()+missing.Len())
}
