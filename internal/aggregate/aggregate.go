// Package aggregate implements the temporal aggregator: it keeps a short
// FIFO of recent per-tick note lists and fuses them into one stabilized set
// of notes per tick, averaging salience for notes that recur across ticks.
// This trades a few ticks of latency for resistance to single-frame false
// positives and transient dropouts.
package aggregate

import (
	"math"

	"github.com/fretcoach/chordverify/internal/pitch"
)

// Aggregator maintains TickHistory and produces the fused note list the
// policy engine consumes. It is owned exclusively by the inference context
// and is not safe for concurrent use.
type Aggregator struct {
	maxLen int
	ticks  [][]pitch.NoteEvent
}

// New constructs an Aggregator retaining up to maxLen recent tick outputs.
// maxLen is clamped to the spec's supported range of 3..5.
func New(maxLen int) *Aggregator {
	if maxLen < 3 {
		maxLen = 3
	}
	if maxLen > 5 {
		maxLen = 5
	}
	return &Aggregator{maxLen: maxLen}
}

// Push appends one tick's note list, dropping the oldest entry if the
// history has grown past maxLen, and returns the fused note set across all
// retained ticks.
func (a *Aggregator) Push(notes []pitch.NoteEvent) []pitch.NoteEvent {
	a.ticks = append(a.ticks, notes)
	if len(a.ticks) > a.maxLen {
		a.ticks = a.ticks[len(a.ticks)-a.maxLen:]
	}
	return a.Fused()
}

// Fused recomputes the current fused note set without pushing a new tick,
// useful for diagnostics.
func (a *Aggregator) Fused() []pitch.NoteEvent {
	type accum struct {
		salience float64
		count    int
	}
	byMIDI := make(map[int]*accum)
	for _, tick := range a.ticks {
		for _, n := range tick {
			key := int(math.Round(float64(n.MIDI)))
			acc, ok := byMIDI[key]
			if !ok {
				acc = &accum{}
				byMIDI[key] = acc
			}
			acc.salience += n.Salience
			acc.count++
		}
	}

	out := make([]pitch.NoteEvent, 0, len(byMIDI))
	for midi, acc := range byMIDI {
		out = append(out, pitch.NoteEvent{
			MIDI:     midi,
			Salience: acc.salience / float64(acc.count),
		})
	}
	return out
}

// Len reports how many ticks are currently retained.
func (a *Aggregator) Len() int { return len(a.ticks) }

// Reset clears the history.
func (a *Aggregator) Reset() { a.ticks = nil }
