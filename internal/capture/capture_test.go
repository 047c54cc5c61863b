package capture

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	writes [][]float32
}

func (f *fakeSink) Write(samples []float32) {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	f.writes = append(f.writes, cp)
}

func encodeFloat32LE(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestOnAudioDataMonoPassthrough(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{}
	m := NewMic(Config{SampleRate: 44100, Channels: 1}, sink)

	input := encodeFloat32LE(0.1, -0.2, 0.3)
	m.onAudioData(nil, input, 3)

	require.Len(t, sink.writes, 1)
	require.InDeltaSlice(t, []float32{0.1, -0.2, 0.3}, sink.writes[0], 1e-6)
}

func TestOnAudioDataMixesStereoToMono(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{}
	m := NewMic(Config{SampleRate: 44100, Channels: 2}, sink)

	// Two frames, interleaved L/R.
	input := encodeFloat32LE(1.0, -1.0, 0.5, 0.5)
	m.onAudioData(nil, input, 2)

	require.Len(t, sink.writes, 1)
	require.InDeltaSlice(t, []float32{0.0, 0.5}, sink.writes[0], 1e-6)
}

func TestOnAudioDataAppliesGain(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{}
	m := NewMic(Config{SampleRate: 44100, Channels: 1, Gain: 2.0}, sink)

	input := encodeFloat32LE(0.1)
	m.onAudioData(nil, input, 1)

	require.InDelta(t, 0.2, sink.writes[0][0], 1e-6)
}

func TestOnDeviceStopReportsErrorOnce(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{}
	m := NewMic(Config{SampleRate: 44100}, sink)
	m.active.Store(true)

	m.onDeviceStop()
	require.False(t, m.IsActive())
	select {
	case <-m.Errors():
	default:
		t.Fatal("expected a device-stopped error to be reported")
	}

	// Calling again while already inactive must not panic or double-report
	// past the channel's buffer.
	m.onDeviceStop()
}
