// Package song resolves named chords and song files into policy.ChordSpec
// sequences, and renders a short MIDI preview of a chord progression.
package song

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/pitch"
	"github.com/fretcoach/chordverify/internal/policy"
)

// qualityIntervals maps the suffix after the root letter to semitone
// intervals above the root, covering the common triads and sevenths a
// practice chart would name.
var qualityIntervals = map[string][]int{
	"":     {0, 4, 7},     // major
	"m":    {0, 3, 7},     // minor
	"7":    {0, 4, 7, 10}, // dominant 7th
	"maj7": {0, 4, 7, 11},
	"m7":   {0, 3, 7, 10},
	"dim":  {0, 3, 6},
	"aug":  {0, 4, 8},
	"sus2": {0, 2, 7},
	"sus4": {0, 5, 7},
}

var rootNames = map[byte]pitch.Class{
	'C': pitch.C,
	'D': pitch.D,
	'E': pitch.E,
	'F': pitch.F,
	'G': pitch.G,
	'A': pitch.A,
	'B': pitch.B,
}

var specCache = cache.New(30*time.Minute, time.Hour)

// ChordSpecFromName parses a chord name such as "Cmaj7", "Am", "G#dim" into
// a ChordSpec: the root letter (A-G), an optional '#'/'b' accidental, and a
// quality suffix looked up in qualityIntervals (falling back to major for
// an unrecognized suffix). Repeated lookups of the same name are served
// from a short-lived cache rather than re-parsed.
func ChordSpecFromName(name string) (policy.ChordSpec, error) {
	if cached, ok := specCache.Get(name); ok {
		return cached.(policy.ChordSpec), nil
	}

	spec, err := parseChordName(name)
	if err != nil {
		return policy.ChordSpec{}, err
	}
	specCache.Set(name, spec, cache.DefaultExpiration)
	return spec, nil
}

func parseChordName(name string) (policy.ChordSpec, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return policy.ChordSpec{}, errors.New(errors.NewStd("empty chord name")).
			Component("song").Category(errors.CategoryValidation).Build()
	}

	root, ok := rootNames[trimmed[0]]
	if !ok {
		return policy.ChordSpec{}, errors.New(errors.NewStd("unrecognized chord root")).
			Component("song").Category(errors.CategoryValidation).
			Context("name", name).Build()
	}
	rest := trimmed[1:]

	switch {
	case strings.HasPrefix(rest, "#"):
		root = pitch.Class((int(root) + 1 + 12) % 12)
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		root = pitch.Class((int(root) - 1 + 12) % 12)
		rest = rest[1:]
	}

	intervals, ok := qualityIntervals[rest]
	if !ok {
		intervals = qualityIntervals[""]
	}

	pcs := make([]pitch.Class, len(intervals))
	for i, iv := range intervals {
		pcs[i] = pitch.Class((int(root) + iv) % 12)
	}

	return policy.NewTriad(root, pcs...), nil
}
