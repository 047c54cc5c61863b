// Package capture drives the host audio callback, mixes input channels to
// mono, and appends the result to the shared ring buffer. The callback must
// not allocate and must not block, so all scratch buffers are preallocated
// at construction and the ring buffer write is lock-free.
package capture

import (
	"encoding/binary"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/fretcoach/chordverify/internal/errors"
	"github.com/fretcoach/chordverify/internal/logging"
)

// Sink is anything that can accept mono float32 samples from the capture
// callback; satisfied by *ringbuf.Buffer, and by fakes in tests.
type Sink interface {
	Write(samples []float32)
}

// Config configures a Mic capture source.
type Config struct {
	SampleRate int
	Channels   int // input channel count to mix down; 0 lets the device choose
	Gain       float32
}

// Mic is a microphone-driven AudioSource backed by malgo, mirroring this
// repo's existing cross-platform capture source but appending directly into
// a lock-free sink instead of a buffered channel, since the chord verifier
// has exactly one consumer (the SRB) rather than a fan-out pipeline.
type Mic struct {
	cfg    Config
	sink   Sink
	errCh  chan error
	active atomic.Bool

	malCtx    *malgo.AllocatedContext
	device    *malgo.Device
	mixdownOf int // channel count the mono mixdown buffer was sized for
	mixdown   []float32
	decoded   []float32 // scratch for the decoded interleaved input, reused across callbacks
}

// NewMic constructs a Mic capture source writing mono samples into sink.
func NewMic(cfg Config, sink Sink) *Mic {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Gain <= 0 {
		cfg.Gain = 1.0
	}
	return &Mic{cfg: cfg, sink: sink, errCh: make(chan error, 8)}
}

// SampleRate returns the device sample rate this source was configured for.
func (m *Mic) SampleRate() int { return m.cfg.SampleRate }

// IsActive reports whether the device is currently capturing.
func (m *Mic) IsActive() bool { return m.active.Load() }

// Errors returns the channel non-fatal device errors are reported on; the
// Controller surfaces these as Error verdicts and, for device loss,
// transitions to idle.
func (m *Mic) Errors() <-chan error { return m.errCh }

func backendsForOS() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa, malgo.BackendPulseAudio}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi, malgo.BackendDsound}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

// Start acquires the capture device and begins streaming. Preprocessing
// flags (echo cancellation, noise suppression, AGC) are expected to already
// be disabled by the caller at the OS/device level; this layer does not
// attempt to toggle them.
func (m *Mic) Start() error {
	ctx, err := malgo.InitContext(backendsForOS(), malgo.ContextConfig{}, func(msg string) {
		logging.Debug("malgo log", "message", msg)
	})
	if err != nil {
		return errors.New(err).Component("capture").Category(errors.CategoryAudioSource).Build()
	}
	m.malCtx = ctx

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	if m.cfg.Channels > 0 {
		deviceCfg.Capture.Channels = uint32(m.cfg.Channels)
	}
	deviceCfg.SampleRate = uint32(m.cfg.SampleRate)
	deviceCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: m.onAudioData,
		Stop: m.onDeviceStop,
	}

	device, err := malgo.InitDevice(m.malCtx.Context, deviceCfg, callbacks)
	if err != nil {
		m.malCtx.Uninit() //nolint:errcheck
		m.malCtx.Free()
		return errors.New(err).Component("capture").Category(errors.CategoryAudioSource).Build()
	}
	m.device = device

	if err := m.device.Start(); err != nil {
		m.teardown()
		return errors.New(err).Component("capture").Category(errors.CategoryAudioSource).Build()
	}

	m.active.Store(true)
	return nil
}

// Stop releases the device. Idempotent.
func (m *Mic) Stop() error {
	if !m.active.CompareAndSwap(true, false) {
		return nil
	}
	m.teardown()
	return nil
}

func (m *Mic) teardown() {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.malCtx != nil {
		m.malCtx.Uninit() //nolint:errcheck
		m.malCtx.Free()
		m.malCtx = nil
	}
}

// onAudioData is the malgo callback: called at device rate in fixed-size
// blocks. It must not allocate once warmed up and must not block.
func (m *Mic) onAudioData(_, input []byte, framecount uint32) {
	channels := m.cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	n := int(framecount)
	if cap(m.mixdown) < n || m.mixdownOf != channels {
		m.mixdown = make([]float32, n)
		m.mixdownOf = channels
	}
	mono := m.mixdown[:n]

	needed := n * channels
	if cap(m.decoded) < needed {
		m.decoded = make([]float32, needed)
	}
	samples := m.decoded[:needed]
	decodeFloat32LE(input, samples)

	if channels <= 1 {
		copy(mono, samples)
	} else {
		for i := 0; i < n; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				idx := i*channels + c
				if idx < len(samples) {
					sum += samples[idx]
				}
			}
			mono[i] = sum / float32(channels)
		}
	}

	if m.cfg.Gain != 1.0 {
		for i := range mono {
			mono[i] *= m.cfg.Gain
		}
	}

	m.sink.Write(mono)
}

// onDeviceStop fires when the device stops unexpectedly (e.g. unplugged).
// The capture context cannot restart itself; it reports loss through
// Errors() and lets the Controller decide the transition to idle.
func (m *Mic) onDeviceStop() {
	if m.active.CompareAndSwap(true, false) {
		select {
		case m.errCh <- errors.New(errors.NewStd("capture device stopped")).
			Component("capture").Category(errors.CategoryAudioSource).Build():
		default:
		}
	}
}

// decodeFloat32LE decodes little-endian float32 PCM from b into out. out
// must already be sized for len(b)/4 samples; this avoids allocating in the
// audio callback.
func decodeFloat32LE(b []byte, out []float32) {
	n := len(b) / 4
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
}
