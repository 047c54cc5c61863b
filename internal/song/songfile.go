package song

import (
	"os"

	"github.com/antonholmquist/jason"

	"github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/policy"
)

// Entry is one chord in a loaded song, with an optional hold duration used
// by the MIDI preview.
type Entry struct {
	Name string
	Spec policy.ChordSpec
	Beat int // beats to hold, defaults to 4 if the file omits it
}

// Song is a named sequence of chords loaded from a song file.
type Song struct {
	Name    string
	TempoBPM int
	Entries []Entry
}

// LoadSong reads a song file (a small JSON document: {"name", "tempo",
// "chords": [{"name", "beats"}, ...]}) and resolves every chord name via
// ChordSpecFromName.
func LoadSong(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).Component("song").Category(errors.CategoryFileIO).
			Context("path", path).Build()
	}

	root, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, errors.New(err).Component("song").Category(errors.CategoryFileParsing).
			Context("path", path).Build()
	}

	name, _ := root.GetString("name")
	tempo, err := root.GetInt64("tempo")
	if err != nil {
		tempo = 120
	}

	chords, err := root.GetObjectArray("chords")
	if err != nil {
		return nil, errors.New(err).Component("song").Category(errors.CategoryFileParsing).
			Context("path", path).Context("field", "chords").Build()
	}

	song := &Song{Name: name, TempoBPM: int(tempo)}
	for _, c := range chords {
		chordName, err := c.GetString("name")
		if err != nil {
			return nil, errors.New(err).Component("song").Category(errors.CategoryFileParsing).
				Context("path", path).Build()
		}
		beats, err := c.GetInt64("beats")
		if err != nil {
			beats = 4
		}
		spec, err := ChordSpecFromName(chordName)
		if err != nil {
			return nil, err
		}
		song.Entries = append(song.Entries, Entry{Name: chordName, Spec: spec, Beat: int(beats)})
	}

	return song, nil
}
