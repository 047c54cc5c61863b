// Package scheduler runs the periodic inference pass: read the latest
// window from the shared ring buffer, resample it to the model's rate,
// invoke the transcription adapter, and forward the result through the
// aggregator and policy engine to the verdict dispatcher. It is the only
// caller of the SRB's reader side and owns the dedicated "inference
// context" goroutine the concurrency model describes.
package scheduler

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fretcoach/chordverify/internal/aggregate"
	"github.com/fretcoach/chordverify/internal/policy"
	"github.com/fretcoach/chordverify/internal/resample"
	"github.com/fretcoach/chordverify/internal/transcribe"
	"github.com/fretcoach/chordverify/internal/verdict"
)

// Source is the reader side of the shared ring buffer.
type Source interface {
	ReadLatest(n int, out []float32)
}

// Settings configures one Scheduler instance.
type Settings struct {
	TickInterval     time.Duration
	WindowSec        float64
	DeviceRate       int
	ModelSampleRate  int
	EvalTimeout      time.Duration // bounds a single adapter call; 0 disables
}

// Scheduler owns the tick loop. It is constructed once per Controller
// session and stopped when the session stops.
type Scheduler struct {
	cfg        Settings
	srb        Source
	adapter    transcribe.Adapter
	aggregator *aggregate.Aggregator
	engine     *policy.Engine
	dispatcher *verdict.Dispatcher

	windowSamples     int
	resampledSamples  int
	windowBuf         []float32
	resampledBuf      []float32

	inFlight   atomic.Bool
	dropped    atomic.Int64
	cancel     context.CancelFunc
	loopDone   chan struct{}
	passWG     sync.WaitGroup
}

// New constructs a Scheduler. windowBuf/resampledBuf are preallocated here
// and reused for every tick, per the spec's WindowBuffer/ResampledBuffer
// data model entries.
func New(cfg Settings, srb Source, adapter transcribe.Adapter, aggregator *aggregate.Aggregator, engine *policy.Engine, dispatcher *verdict.Dispatcher) *Scheduler {
	windowSamples := int(math.Ceil(cfg.WindowSec * float64(cfg.DeviceRate)))
	resampledSamples := resample.OutputSamples(cfg.WindowSec, cfg.ModelSampleRate)

	return &Scheduler{
		cfg:              cfg,
		srb:              srb,
		adapter:          adapter,
		aggregator:       aggregator,
		engine:           engine,
		dispatcher:       dispatcher,
		windowSamples:    windowSamples,
		resampledSamples: resampledSamples,
		windowBuf:        make([]float32, windowSamples),
		resampledBuf:     make([]float32, resampledSamples),
	}
}

// DroppedTicks reports how many ticks were skipped because a previous pass
// was still in flight (the single-flight backpressure mechanism).
func (s *Scheduler) DroppedTicks() int64 { return s.dropped.Load() }

// Start spawns the tick loop goroutine. The loop itself never blocks the
// audio callback: its only shared-state interaction is SRB.ReadLatest.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	go s.loop(loopCtx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.onTick(ctx, now)
		}
	}
}

// onTick implements the single-flight drop policy: if a previous pass has
// not completed, this tick is skipped rather than queued.
func (s *Scheduler) onTick(ctx context.Context, now time.Time) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		return
	}

	s.passWG.Add(1)
	go func() {
		defer s.passWG.Done()
		defer s.inFlight.Store(false)
		s.runPass(ctx, now)
	}()
}

func (s *Scheduler) runPass(ctx context.Context, now time.Time) {
	s.srb.ReadLatest(s.windowSamples, s.windowBuf)
	resample.Linear(s.windowBuf, s.cfg.DeviceRate, s.cfg.ModelSampleRate, s.resampledBuf)

	evalCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.EvalTimeout > 0 {
		evalCtx, cancel = context.WithTimeout(ctx, s.cfg.EvalTimeout)
		defer cancel()
	}

	t0 := time.Now()
	notes, err := s.adapter.Evaluate(evalCtx, s.resampledBuf)
	t1 := time.Now()
	inferenceMs := float64(t1.Sub(t0).Microseconds()) / 1000.0

	if err != nil {
		s.dispatcher.Dispatch(verdict.Error(now, err.Error()))
		s.dispatcher.Dispatch(verdict.Tick(now, inferenceMs))
		return
	}

	fused := s.aggregator.Push(notes)
	outcome := s.engine.Evaluate(fused, now)

	s.dispatcher.Dispatch(verdict.NotesVerdict(now, notes))
	s.dispatcher.Dispatch(verdict.Tick(now, inferenceMs))

	switch {
	case outcome.Matched:
		s.dispatcher.Dispatch(verdict.Match(now))
	case outcome.Missed:
		s.dispatcher.Dispatch(verdict.Miss(now, outcome.Matches, outcome.Missing))
	}
}

// Stop cancels the tick loop and waits for any in-flight pass to finish;
// its verdict, if emitted after cancellation began, may still be
// delivered, per the spec's note that in-flight inferences are allowed to
// complete but their verdicts may be discarded by the caller. Idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.loopDone
	s.passWG.Wait()
	s.cancel = nil
}
