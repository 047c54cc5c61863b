// Package transcribe wraps a pretrained polyphonic note-transcription model
// behind the Adapter capability: evaluate(samples) -> []NoteEvent. Any
// implementation satisfying the contract (fixed input length, output event
// shape) is substitutable; Model is the concrete TensorFlow Lite-backed
// implementation, grounded on this codebase's existing BirdNET model
// wrapper, but callers should generally depend on the Adapter interface.
package transcribe

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/logging"
	"github.com/fretcoach/chordverify/internal/pitch"
)

// WindowSamples is the model's fixed input length at ModelSampleRate.
const WindowSamples = 43844

// ModelSampleRate is the rate, in Hz, the model's input window is sampled at.
const ModelSampleRate = 22050

// Adapter is the transcription model capability the scheduler invokes each
// tick. Implementations must accept exactly WindowSamples of mono float32
// audio at ModelSampleRate and return the note events detected in it.
type Adapter interface {
	// Evaluate transcribes one fixed-length window. If the caller
	// provides a shorter or longer slice, Prepare should be used first to
	// normalize it to WindowSamples per the contract (zero-pad the front,
	// or take the trailing subrange).
	Evaluate(ctx context.Context, samples []float32) ([]pitch.NoteEvent, error)
	// Close releases model resources.
	Close() error
}

// AdapterError is returned when the model produces missing or malformed
// output; the scheduler converts this into an Error verdict and continues
// ticking rather than treating it as fatal.
type AdapterError struct {
	Err error
}

func (e *AdapterError) Error() string { return fmt.Sprintf("transcription adapter: %v", e.Err) }
func (e *AdapterError) Unwrap() error { return e.Err }

// Prepare normalizes in to exactly WindowSamples: zero-padding the front if
// in is shorter, or taking the trailing WindowSamples subrange if longer.
func Prepare(in []float32) []float32 {
	if len(in) == WindowSamples {
		return in
	}
	out := make([]float32, WindowSamples)
	if len(in) < WindowSamples {
		copy(out[WindowSamples-len(in):], in)
		return out
	}
	copy(out, in[len(in)-WindowSamples:])
	return out
}

// ModelConfig configures Model construction.
type ModelConfig struct {
	Data           []byte // serialized TFLite flatbuffer
	Threads        int    // 0 selects runtime.NumCPU()
	UseXNNPACK     bool
	EvalTimeout    time.Duration // bounds one Evaluate call; 0 disables the bound
	FrameHopSec    float64       // onset-grouping frame hop, seconds
	OnsetThreshold float64       // minimum onset activation to start a note group
	PitchThreshold float64       // minimum pitch activation to continue a note group
}

// Model is a TensorFlow Lite-backed Adapter. It owns its interpreter and
// options for the lifetime of the process; Close does not free them.
type Model struct {
	cfg         ModelConfig
	interpreter *tflite.Interpreter
	logger      interface {
		Warn(msg string, args ...any)
	}

	mu sync.Mutex // serializes Invoke(); go-tflite interpreters are not reentrant

	bufPool sync.Pool // reusable float32 scratch buffers for the fixed input length
}

// NewModel loads cfg.Data and allocates a TFLite interpreter, optionally
// backed by the XNNPACK delegate, mirroring this repo's existing model
// initialization for a different (polyphonic, not classification) model.
func NewModel(cfg ModelConfig) (*Model, error) {
	if len(cfg.Data) == 0 {
		return nil, errors.New(errors.NewStd("transcription model data is empty")).
			Component("transcribe").Category(errors.CategoryConfiguration).Build()
	}
	if cfg.OnsetThreshold <= 0 {
		cfg.OnsetThreshold = 0.5
	}
	if cfg.PitchThreshold <= 0 {
		cfg.PitchThreshold = 0.5
	}
	if cfg.FrameHopSec <= 0 {
		cfg.FrameHopSec = WindowSamples / float64(ModelSampleRate) / 172.0 // ~172 frames across the window
	}

	model := tflite.NewModel(cfg.Data)
	if model == nil {
		return nil, errors.New(errors.NewStd("cannot parse transcription model")).
			Component("transcribe").Category(errors.CategoryAdapter).Build()
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	if cfg.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))})
		if delegate == nil {
			logging.Warn("failed to create XNNPACK delegate, falling back to CPU", "threads", threads)
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, userData any) {
		logging.Error("tflite runtime error", "message", msg)
	}, nil)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		return nil, errors.New(errors.NewStd("cannot create transcription interpreter")).
			Component("transcribe").Category(errors.CategoryAdapter).Build()
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		return nil, errors.New(errors.NewStd("tensor allocation failed")).
			Component("transcribe").Category(errors.CategoryAdapter).Build()
	}

	m := &Model{cfg: cfg, interpreter: interp}
	m.bufPool.New = func() any {
		buf := make([]float32, WindowSamples)
		return &buf
	}
	return m, nil
}

// Evaluate feeds samples (already exactly WindowSamples long; use Prepare
// otherwise) to the model and converts its frame-level activations into
// note events. A bounded goroutine+timeout pattern keeps a hung model call
// from stalling the scheduler indefinitely when EvalTimeout is set.
func (m *Model) Evaluate(ctx context.Context, samples []float32) ([]pitch.NoteEvent, error) {
	if len(samples) != WindowSamples {
		samples = Prepare(samples)
	}

	type result struct {
		notes []pitch.NoteEvent
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &AdapterError{Err: fmt.Errorf("panic during inference: %v", r)}}
			}
		}()
		notes, err := m.evaluateSync(samples)
		done <- result{notes: notes, err: err}
	}()

	evalCtx := ctx
	var cancel context.CancelFunc
	if m.cfg.EvalTimeout > 0 {
		evalCtx, cancel = context.WithTimeout(ctx, m.cfg.EvalTimeout)
		defer cancel()
	}

	select {
	case r := <-done:
		return r.notes, r.err
	case <-evalCtx.Done():
		return nil, &AdapterError{Err: evalCtx.Err()}
	}
}

func (m *Model) evaluateSync(samples []float32) ([]pitch.NoteEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inputTensor := m.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, &AdapterError{Err: errors.NewStd("missing input tensor")}
	}
	input := inputTensor.Float32s()
	if len(input) < len(samples) {
		return nil, &AdapterError{Err: errors.NewStd("input tensor shorter than window")}
	}
	copy(input, samples)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, &AdapterError{Err: fmt.Errorf("invoke failed: status %v", status)}
	}

	pitchTensor := m.interpreter.GetOutputTensor(0)
	onsetTensor := m.interpreter.GetOutputTensor(1)
	if pitchTensor == nil || onsetTensor == nil {
		return nil, &AdapterError{Err: errors.NewStd("missing output tensors")}
	}

	return m.framesToNotes(pitchTensor.Float32s(), onsetTensor.Float32s())
}

// framesToNotes groups contiguous active pitch frames anchored to onset
// frames into discrete notes, taking the median MIDI bin per group and its
// peak activation as salience, per the adapter's documented algorithm.
// pitchActivations is frames x 128 MIDI bins, flattened row-major; onsets is
// one value per frame per bin in the same layout.
func (m *Model) framesToNotes(pitchActivations, onsets []float32) ([]pitch.NoteEvent, error) {
	const bins = 128
	if bins == 0 || len(pitchActivations)%bins != 0 || len(pitchActivations) != len(onsets) {
		return nil, &AdapterError{Err: fmt.Errorf("malformed model output: %d pitch values, %d onset values", len(pitchActivations), len(onsets))}
	}
	frames := len(pitchActivations) / bins
	if frames == 0 {
		return nil, nil
	}

	type group struct {
		startFrame int
		midis      []int
		peak       float64
	}
	active := make(map[int]*group) // bin -> open group

	var finished []group
	closeGroup := func(bin int) {
		if g, ok := active[bin]; ok {
			finished = append(finished, *g)
			delete(active, bin)
		}
	}

	for f := 0; f < frames; f++ {
		for bin := 0; bin < bins; bin++ {
			idx := f*bins + bin
			onset := float64(onsets[idx])
			activation := float64(pitchActivations[idx])

			switch {
			case onset >= m.cfg.OnsetThreshold:
				// A new onset always starts a fresh group, closing any
				// still-open group for this bin first.
				closeGroup(bin)
				active[bin] = &group{startFrame: f, midis: []int{bin}, peak: activation}
			case activation >= m.cfg.PitchThreshold:
				if g, ok := active[bin]; ok {
					g.midis = append(g.midis, bin)
					if activation > g.peak {
						g.peak = activation
					}
				}
			default:
				closeGroup(bin)
			}
		}
	}
	for bin := range active {
		closeGroup(bin)
	}

	notes := make([]pitch.NoteEvent, 0, len(finished))
	for _, g := range finished {
		sort.Ints(g.midis)
		median := g.midis[len(g.midis)/2]
		start := float64(g.startFrame) * m.cfg.FrameHopSec
		end := float64(g.startFrame+len(g.midis)) * m.cfg.FrameHopSec
		salience := math.Min(1, math.Max(0, g.peak))
		notes = append(notes, pitch.NoteEvent{
			MIDI:      median,
			StartTime: start,
			EndTime:   &end,
			Salience:  salience,
		})
	}
	return notes, nil
}

// Close satisfies Adapter and always returns nil. It does not release the
// underlying interpreter or its options; the Model keeps them until the
// process exits. It is safe to call multiple times.
func (m *Model) Close() error {
	return nil
}
