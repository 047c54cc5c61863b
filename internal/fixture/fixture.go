// Package fixture provides a WAV-file-backed AudioSource for deterministic
// end-to-end tests: it decodes a file once, then streams it into a sink on
// the same Start/Stop/SampleRate/Errors contract capture.Mic satisfies, so a
// verifier.Controller cannot tell the difference between a fixture and a
// live microphone.
package fixture

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/fretcoach/chordverify/internal/errors"
)

// Sink is anything that can accept mono float32 samples; satisfied by
// *ringbuf.Buffer.
type Sink interface {
	Write(samples []float32)
}

// Config configures a WAV playback source.
type Config struct {
	Path string

	// ChunkFrames is how many frames are decoded and written per step.
	// Smaller values produce finer-grained pacing; 0 picks a default.
	ChunkFrames int

	// RealTime paces writes to wall-clock speed (one ChunkFrames' worth of
	// audio every ChunkFrames/SampleRate seconds), mimicking a live
	// capture callback's cadence. When false, the whole file is decoded
	// and written to the sink as fast as possible, for tests that only
	// care about eventual state rather than timing.
	RealTime bool

	// Loop repeats the file once it ends, until Stop is called.
	Loop bool
}

// Source streams a decoded WAV file into a sink, standing in for
// capture.Mic in tests and demos that don't have a microphone available.
type Source struct {
	cfg        Config
	sink       Sink
	sampleRate int
	divisor    float32

	samples []float32 // entire file, mono, pre-converted to float32

	errCh  chan error
	active atomic.Bool
	stopCh chan struct{}
	doneWg sync.WaitGroup
}

// New decodes path and returns a Source ready to Start. The file must be
// PCM WAV, 16/24/32-bit; its sample rate is reported via SampleRate and is
// not resampled, so callers should match it against the model's expected
// rate (or route it through internal/resample) before wiring it in.
func New(cfg Config, sink Sink) (*Source, error) {
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = 1024
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, errors.New(err).Component("fixture").Category(errors.CategoryFileIO).
			Context("path", cfg.Path).Build()
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New(errors.NewStd("not a valid WAV file")).
			Component("fixture").Category(errors.CategoryFileParsing).Context("path", cfg.Path).Build()
	}

	var divisor float32
	switch decoder.BitDepth {
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, errors.New(errors.NewStd("unsupported bit depth")).
			Component("fixture").Category(errors.CategoryFileParsing).
			Context("path", cfg.Path).Context("bitDepth", decoder.BitDepth).Build()
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		channels = 1
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, cfg.ChunkFrames*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	var mono []float32
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(err).Component("fixture").Category(errors.CategoryFileParsing).
				Context("path", cfg.Path).Build()
		}
		if n == 0 {
			break
		}
		frames := n / channels
		for i := 0; i < frames; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				idx := i*channels + c
				if idx < n {
					sum += float32(buf.Data[idx]) / divisor
				}
			}
			mono = append(mono, sum/float32(channels))
		}
	}

	return &Source{
		cfg:        cfg,
		sink:       sink,
		sampleRate: int(decoder.SampleRate),
		divisor:    divisor,
		samples:    mono,
		errCh:      make(chan error, 4),
	}, nil
}

// SampleRate returns the file's native sample rate.
func (s *Source) SampleRate() int { return s.sampleRate }

// Errors returns the channel playback errors are reported on. A fixture
// source has nothing that can fail mid-stream short of EOF, which is not an
// error, so this channel is mostly idle; it exists to satisfy
// verifier.AudioSource.
func (s *Source) Errors() <-chan error { return s.errCh }

// Start begins streaming decoded samples into the sink. If cfg.RealTime is
// false, the entire file is written synchronously before Start returns.
func (s *Source) Start() error {
	if !s.active.CompareAndSwap(false, true) {
		return nil
	}
	if !s.cfg.RealTime {
		s.writeAll()
		if !s.cfg.Loop {
			s.active.Store(false)
		}
		return nil
	}

	s.stopCh = make(chan struct{})
	s.doneWg.Add(1)
	go s.runRealTime()
	return nil
}

func (s *Source) writeAll() {
	if len(s.samples) == 0 {
		return
	}
	s.sink.Write(s.samples)
}

func (s *Source) runRealTime() {
	defer s.doneWg.Done()
	chunk := s.cfg.ChunkFrames
	interval := time.Duration(float64(chunk) / float64(s.sampleRate) * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if pos >= len(s.samples) {
				if !s.cfg.Loop {
					return
				}
				pos = 0
			}
			end := pos + chunk
			if end > len(s.samples) {
				end = len(s.samples)
			}
			s.sink.Write(s.samples[pos:end])
			pos = end
		}
	}
}

// Stop halts real-time playback. Idempotent.
func (s *Source) Stop() error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.doneWg.Wait()
	}
	return nil
}
