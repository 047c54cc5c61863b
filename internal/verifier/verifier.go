// Package verifier implements the Controller: the public entry point that
// owns the lifecycle of capture, the shared ring buffer, the inference
// scheduler, and policy state, and routes errors to the verdict stream.
package verifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fretcoach/chordverify/internal/aggregate"
	"github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/logging"
	"github.com/fretcoach/chordverify/internal/policy"
	"github.com/fretcoach/chordverify/internal/ringbuf"
	"github.com/fretcoach/chordverify/internal/scheduler"
	"github.com/fretcoach/chordverify/internal/transcribe"
	"github.com/fretcoach/chordverify/internal/verdict"
)

// Status is the Controller's coarse lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusListening Status = "listening"
	StatusError     Status = "error"
)

// AudioSource is the capture-side dependency the Controller drives: it must
// expose Start/Stop and report device loss through Errors().
type AudioSource interface {
	Start() error
	Stop() error
	SampleRate() int
	Errors() <-chan error
}

// Settings configures a Controller; see internal/config for the option
// table these are populated from, with the same names and defaults.
type Settings struct {
	WindowSec          float64
	DeviceSampleRate   int // expected capture rate; the SRB is sized from this before the source exists
	TickInterval       time.Duration
	ModelSampleRate    int
	ModelWindowSamples int
	FramesConfirm      int
	MissCooldown       time.Duration
	SalienceThreshold  float64
	CentsTolerance     int // 0 leaves SalienceThreshold as given; see policy.WithCentsTolerance
	TransposeSemitones int
	AcceptInversions   bool
	PolicyKind         policy.Kind
	AggregatorMaxLen   int
	EvalTimeout        time.Duration
}

// Controller is the Verifier Controller: start/stop/setExpected/onResult.
type Controller struct {
	settings Settings
	adapter  transcribe.Adapter
	logger   *slog.Logger

	mu         sync.Mutex
	status     Status
	sessionID  string
	source     AudioSource
	srb        *ringbuf.Buffer
	engine     *policy.Engine
	scheduler  *scheduler.Scheduler
	dispatcher *verdict.Dispatcher
	cancel     context.CancelFunc
	errDone    chan struct{}
}

// NewSourceFunc constructs the capture-side AudioSource once the SRB sink
// is known, since every source (the mic, a WAV fixture) writes into it
// directly rather than returning samples through a call.
type NewSourceFunc func(sink interface{ Write([]float32) }) (AudioSource, error)

// New constructs an idle Controller around an adapter. The capture source
// is not given here: Start takes a source factory, because the source
// writes into the SRB that Start creates. The SRB is sized from
// Settings.DeviceSampleRate; the scheduler uses the rate the source reports.
func New(settings Settings, adapter transcribe.Adapter) *Controller {
	if settings.FramesConfirm <= 0 {
		settings.FramesConfirm = 3
	}
	if settings.AggregatorMaxLen <= 0 {
		settings.AggregatorMaxLen = 5
	}
	return &Controller{
		settings:   settings,
		adapter:    adapter,
		status:     StatusIdle,
		dispatcher: verdict.NewDispatcher(),
	}
}

// Status returns the Controller's current lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnResult subscribes handler to the verdict stream; equivalent to the
// spec's onResult(callback) but generalized to the Dispatcher's handler
// registry so additional sinks (OSC, MQTT) can subscribe the same way.
func (c *Controller) OnResult(id string, callback func(verdict.Verdict)) error {
	return c.dispatcher.AddHandler(verdict.NewHandlerFunc(id, callback))
}

// Dispatcher exposes the verdict dispatcher so callers can register
// long-lived sinks (verdict.OSCSink, verdict.MQTTSink) directly.
func (c *Controller) Dispatcher() *verdict.Dispatcher { return c.dispatcher }

// Start acquires the audio device via newSource, initializes the SRB,
// spawns the scheduler, warms the adapter with one silent inference, and
// transitions to Listening. On any failure the Controller transitions to
// Error and returns one of PermissionDenied, DeviceUnavailable, or
// AdapterInitFailed (surfaced here as categorized errors, not sentinel
// strings, since Go idiom favors errors.Is/As over string matching).
func (c *Controller) Start(ctx context.Context, newSource NewSourceFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusListening || c.status == StatusLoading {
		return nil
	}
	c.status = StatusLoading
	c.sessionID = uuid.NewString()
	logger := logging.ForService("verifier")
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger.With("session", c.sessionID)

	capacity := int((c.settings.WindowSec + 0.5) * float64(c.settings.DeviceSampleRate))
	srb, err := ringbuf.New(capacity)
	if err != nil {
		c.status = StatusError
		return errors.New(err).Component("verifier").Category(errors.CategoryConfiguration).Build()
	}
	c.srb = srb

	source, err := newSource(srb)
	if err != nil {
		c.status = StatusError
		return errors.New(err).Component("verifier").Category(errors.CategoryAudioSource).
			Context("phase", "device-acquire").Build()
	}
	c.source = source
	deviceRate := source.SampleRate()

	if err := c.warmAdapter(ctx); err != nil {
		c.status = StatusError
		return errors.New(err).Component("verifier").Category(errors.CategoryAdapter).Build()
	}

	if err := source.Start(); err != nil {
		c.status = StatusError
		return errors.New(err).Component("verifier").Category(errors.CategoryAudioSource).Build()
	}

	c.engine = policy.NewEngine(policy.Settings{
		SalienceThreshold:  c.settings.SalienceThreshold,
		TransposeSemitones: c.settings.TransposeSemitones,
		AcceptInversions:   c.settings.AcceptInversions,
		PolicyKind:         c.settings.PolicyKind,
		FramesConfirm:      c.settings.FramesConfirm,
		MissCooldown:       c.settings.MissCooldown,
	})
	if c.settings.CentsTolerance > 0 {
		c.engine.WithCentsTolerance(c.settings.CentsTolerance)
	}
	agg := aggregate.New(c.settings.AggregatorMaxLen)

	sched := scheduler.New(scheduler.Settings{
		TickInterval:    c.settings.TickInterval,
		WindowSec:       c.settings.WindowSec,
		DeviceRate:      deviceRate,
		ModelSampleRate: c.settings.ModelSampleRate,
		EvalTimeout:     c.settings.EvalTimeout,
	}, srb, c.adapter, agg, c.engine, c.dispatcher)
	c.scheduler = sched

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	sched.Start(runCtx)

	c.errDone = make(chan struct{})
	go c.watchSourceErrors(runCtx, source)

	c.status = StatusListening
	return nil
}

func (c *Controller) warmAdapter(ctx context.Context) error {
	silence := make([]float32, transcribe.WindowSamples)
	_, err := c.adapter.Evaluate(ctx, silence)
	return err
}

// watchSourceErrors forwards device errors as Error verdicts; a device-loss
// error also transitions the Controller to idle per the capture contract.
func (c *Controller) watchSourceErrors(ctx context.Context, source AudioSource) {
	defer close(c.errDone)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-source.Errors():
			if !ok {
				return
			}
			c.dispatcher.Dispatch(verdict.Error(time.Now(), err.Error()))
			c.mu.Lock()
			if c.status == StatusListening {
				c.status = StatusIdle
			}
			c.mu.Unlock()
		}
	}
}

// Stop cancels the scheduler, releases the device, and discards the SRB.
// Idempotent. The teardown itself runs outside the Controller's lock so
// watchSourceErrors, which also takes the lock to record a status
// transition, can never deadlock against it.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.status == StatusIdle && c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	cancel, sched, errDone, source, logger := c.cancel, c.scheduler, c.errDone, c.source, c.logger
	c.status = StatusIdle
	c.srb = nil
	c.source = nil
	c.scheduler = nil
	c.cancel = nil
	c.errDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sched != nil {
		sched.Stop()
	}
	if errDone != nil {
		<-errDone
	}
	if source != nil {
		if err := source.Stop(); err != nil && logger != nil {
			logger.Warn("error stopping capture source", "error", err)
		}
	}
	return nil
}

// SetExpected atomically replaces the verification target and resets
// confirmation/debounce state. Calling it before Start changes nothing and
// returns a CategoryState error, since the policy engine does not exist yet.
func (c *Controller) SetExpected(spec policy.ChordSpec) error {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine == nil {
		return errors.New(errors.NewStd("setExpected called before start")).
			Component("verifier").Category(errors.CategoryState).Build()
	}
	return engine.SetExpected(spec)
}

// Phase exposes the policy engine's confirmation/debounce phase for
// diagnostics and UI status display.
func (c *Controller) Phase() policy.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return policy.PhaseIdle
	}
	return c.engine.Phase()
}
