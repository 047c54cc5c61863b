// Package policy implements the chord verification decision engine: turning
// aggregated notes into a pitch-class set, checking it against the current
// expected chord under one of three policies, and applying confirmation and
// miss-debounce so the verdict stream doesn't chatter on sustain or noise.
package policy

import (
	"sync"
	"time"

	"github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/pitch"
)

// Kind selects the verification algorithm applied to the detected
// pitch-class set.
type Kind string

const (
	// KOfN passes when at least k of the expected pitch classes are
	// present. This is the default policy.
	KOfN Kind = "K_OF_N"
	// IncludesTarget passes when the spec's root (or its first listed
	// pitch class if root is unset) is present, regardless of the rest.
	IncludesTarget Kind = "INCLUDES_TARGET"
	// BassPriority requires KOfN to pass AND the lowest detected note to
	// be the spec's root.
	BassPriority Kind = "BASS_PRIORITY"
)

// ChordSpec is the current verification target: a set of expected pitch
// classes, how many of them must be present (k), and an optional root used
// by IncludesTarget/BassPriority and inversion rejection.
type ChordSpec struct {
	PCs  pitch.Set
	K    int
	Root *pitch.Class
}

// NewTriad builds a ChordSpec with the conventional default of k = min(2,
// |pcs|), matching the spec's "default k = min(2, |pcs|) for triads" rule.
func NewTriad(root pitch.Class, pcs ...pitch.Class) ChordSpec {
	set := pitch.NewSet(pcs...)
	k := 2
	if set.Len() < 2 {
		k = set.Len()
	}
	r := root
	return ChordSpec{PCs: set, K: k, Root: &r}
}

// Validate checks the ConfigInvalid conditions from the error taxonomy:
// an empty pitch-class set, or k outside [1, |pcs|].
func (s ChordSpec) Validate() error {
	if s.PCs == nil || s.PCs.Len() == 0 {
		return errors.New(errors.NewStd("chord spec has no pitch classes")).
			Component("policy").Category(errors.CategoryValidation).Build()
	}
	if s.K < 1 || s.K > s.PCs.Len() {
		return errors.New(errors.NewStd("chord spec k out of range")).
			Component("policy").Category(errors.CategoryValidation).
			Context("k", s.K).Context("pcs", s.PCs.Len()).Build()
	}
	return nil
}

func (s ChordSpec) rootOrFirst() pitch.Class {
	if s.Root != nil {
		return *s.Root
	}
	// No root set: fall back to the lowest-numbered listed pitch class,
	// as a stable stand-in for "pcs[0]" on an unordered set.
	slice := s.PCs.Slice()
	if len(slice) == 0 {
		return pitch.C
	}
	return slice[0]
}

// Settings configures Engine's thresholds and chosen policy; see
// internal/config for the defaults these are populated from.
type Settings struct {
	SalienceThreshold  float64
	TransposeSemitones int
	AcceptInversions   bool
	PolicyKind         Kind
	FramesConfirm      int
	MissCooldown       time.Duration
}

// State is the confirmation/debounce state machine's persisted fields.
type State struct {
	ConfirmCount int
	LastMatchAt  *time.Time
	LastMissAt   *time.Time
}

// Phase names the coarse state machine position, exposed for diagnostics.
type Phase string

const (
	PhaseIdle       Phase = "idle"       // no expected chord set yet
	PhaseArmed      Phase = "armed"      // expected set, awaiting passes
	PhaseConfirming Phase = "confirming" // at least one consecutive pass accrued
	PhaseCooldown   Phase = "cooldown"   // just matched, confirm count reset
)

// Outcome is what Engine.Evaluate decides for one tick: at most one of
// Match or Miss is populated (both false/empty means "emit nothing", e.g.
// a miss suppressed by debounce, or no expected chord armed yet).
type Outcome struct {
	T       time.Time
	Matched bool
	Missed  bool
	Matches pitch.Set
	Missing pitch.Set
}

// Engine holds the current ChordSpec and confirmation/debounce state. The
// inference context calls Evaluate; the Controller calls SetExpected
// directly from its own goroutine. Both take the engine's mutex, so a new
// target replaces the old one between two Evaluate calls; there is no
// message queue between the Controller and the inference context.
type Engine struct {
	mu       sync.Mutex
	settings Settings
	spec     *ChordSpec
	state    State
	phase    Phase
}

// NewEngine constructs an Engine with no expected chord armed (Idle).
func NewEngine(settings Settings) *Engine {
	if settings.FramesConfirm <= 0 {
		settings.FramesConfirm = 3
	}
	if settings.PolicyKind == "" {
		settings.PolicyKind = KOfN
	}
	return &Engine{settings: settings, phase: PhaseIdle}
}

// SetExpected atomically replaces the verification target and resets
// confirmation/debounce state, forcing the Armed phase. Calling it twice
// with an identical spec is equivalent to calling it once.
func (e *Engine) SetExpected(spec ChordSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spec = &spec
	e.state = State{}
	e.phase = PhaseArmed
	return nil
}

// Phase returns the engine's current coarse state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// centsToSalience maps a caller-supplied detune tolerance to a salience
// threshold via the lookup table the distillation source used in place of
// true pitch-cents tolerance: tighter tolerance requires higher confidence.
func centsToSalience(centsTol int) float64 {
	switch {
	case centsTol <= 25:
		return 0.4
	case centsTol <= 50:
		return 0.3
	default:
		return 0.2
	}
}

// WithCentsTolerance overrides the engine's salience threshold using the
// centsTol → salienceThreshold lookup, preserving the source behavior noted
// as semantically misleading in the design notes (a tolerance value is
// repurposed as a confidence cutoff, not a true cents window).
func (e *Engine) WithCentsTolerance(centsTol int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.SalienceThreshold = centsToSalience(centsTol)
}

// Evaluate runs one tick of the policy: filters notes by salience, reduces
// the survivors to a pitch-class set, applies the configured policy, and
// updates confirmation/debounce state. now is the verdict timestamp.
func (e *Engine) Evaluate(notes []pitch.NoteEvent, now time.Time) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.spec == nil {
		return Outcome{T: now}
	}
	spec := *e.spec

	filtered := make([]pitch.NoteEvent, 0, len(notes))
	for _, n := range notes {
		if n.Salience >= e.settings.SalienceThreshold {
			filtered = append(filtered, n)
		}
	}

	// A positive TransposeSemitones (a capo) shifts detected notes down to
	// the scored key, so a D major played with a capo at 2 reads as C major.
	shift := -e.settings.TransposeSemitones
	pcSet := make(pitch.Set)
	var lowestMIDI int
	haveLowest := false
	for _, n := range filtered {
		pcSet.Add(pitch.FromMIDI(n.MIDI, shift))
		if !haveLowest || n.MIDI < lowestMIDI {
			lowestMIDI = n.MIDI
			haveLowest = true
		}
	}
	var lowestPC pitch.Class
	if haveLowest {
		lowestPC = pitch.FromMIDI(lowestMIDI, shift)
	}

	matched := spec.PCs.Intersect(pcSet)
	missing := spec.PCs.Difference(pcSet)

	pass := e.evaluatePolicy(spec, pcSet, matched, lowestPC, haveLowest)
	if pass && !e.settings.AcceptInversions {
		pass = haveLowest && lowestPC == spec.rootOrFirst()
	}

	if pass {
		e.state.ConfirmCount++
		e.phase = PhaseConfirming
	} else {
		e.state.ConfirmCount = 0
		if e.phase != PhaseCooldown {
			e.phase = PhaseArmed
		}
	}

	if pass && e.state.ConfirmCount >= e.settings.FramesConfirm {
		e.state.ConfirmCount = 0
		e.state.LastMatchAt = &now
		e.phase = PhaseCooldown
		return Outcome{T: now, Matched: true, Matches: matched}
	}

	if !pass {
		if e.state.LastMissAt == nil || now.Sub(*e.state.LastMissAt) >= e.settings.MissCooldown {
			e.state.LastMissAt = &now
			return Outcome{T: now, Missed: true, Matches: matched, Missing: missing}
		}
	}

	return Outcome{T: now}
}

func (e *Engine) evaluatePolicy(spec ChordSpec, pcSet, matched pitch.Set, lowestPC pitch.Class, haveLowest bool) bool {
	switch e.settings.PolicyKind {
	case IncludesTarget:
		return pcSet.Contains(spec.rootOrFirst())
	case BassPriority:
		return matched.Len() >= spec.K && haveLowest && lowestPC == spec.rootOrFirst()
	case KOfN:
		fallthrough
	default:
		return matched.Len() >= spec.K
	}
}
