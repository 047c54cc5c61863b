// Package resample implements the linear resampler that converts the
// device-rate rolling window into the fixed-rate buffer the transcription
// model expects. It stays deliberately scalar: the model's 1.3s context
// length dominates aliasing concerns far more than resampler quality, so a
// simple O(n) linear interpolation is the chosen implementation per the
// detection core's design notes.
package resample

import (
	"github.com/klauspost/cpuid/v2"

	"github.com/fretcoach/chordverify/internal/logging"
)

func init() {
	// Informational only: this resampler intentionally stays scalar
	// regardless of available SIMD extensions, but it's worth knowing at
	// startup whether the host could support a vectorized implementation
	// later.
	logging.Debug("resampler SIMD feature availability",
		"avx2", cpuid.CPU.Supports(cpuid.AVX2),
		"sse4", cpuid.CPU.Supports(cpuid.SSE4))
}

// Linear resamples in (sampled at inRate Hz) into out (sized for outRate
// Hz), in place. When inRate == outRate it is an exact copy. For each
// output index i, the corresponding input position is i*inRate/outRate;
// boundary accesses past the end of in are clamped to the last sample.
func Linear(in []float32, inRate, outRate int, out []float32) {
	if len(in) == 0 || len(out) == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}

	if inRate == outRate {
		n := copy(out, in)
		for i := n; i < len(out); i++ {
			out[i] = in[len(in)-1]
		}
		return
	}

	ratio := float64(inRate) / float64(outRate)
	lastIdx := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx > lastIdx {
			idx = lastIdx
		}
		frac := float32(pos - float64(idx))

		a := in[idx]
		b := a
		if idx+1 <= lastIdx {
			b = in[idx+1]
		}
		out[i] = a + (b-a)*frac
	}
}

// OutputSamples returns the number of output samples needed to represent
// durationSec of audio at outRate Hz, matching the ceil() used when the
// Controller sizes ResampledBuffer.
func OutputSamples(durationSec float64, outRate int) int {
	n := int(durationSec * float64(outRate))
	if float64(n) < durationSec*float64(outRate) {
		n++
	}
	return n
}
