package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthroughWhenRatesEqual(t *testing.T) {
	s := New(1, 48000, 48000)
	require.True(t, s.Passthrough())

	in := []float32{0.1, 0.2, 0.3}
	out := s.Process(0, in, nil)
	assert.Equal(t, in, out)
}

func TestUpsampleProducesMoreSamplesThanInput(t *testing.T) {
	s := New(1, 44100, 48000)
	require.False(t, s.Passthrough())

	var out []float32
	in := make([]float32, 2000)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}
	// Feed in chunks to exercise cross-call history.
	const chunk = 200
	for i := 0; i < len(in); i += chunk {
		end := i + chunk
		if end > len(in) {
			end = len(in)
		}
		out = s.Process(0, in[i:end], out)
	}

	assert.NotEmpty(t, out)
	// 44100 -> 48000 is roughly a 1.088x ratio; allow generous slack for
	// warm-up latency at the start/end of the stream.
	ratio := float64(len(out)) / float64(len(in))
	assert.InDelta(t, 48000.0/44100.0, ratio, 0.1)

	for _, v := range out {
		assert.False(t, math.IsNaN(float64(v)))
		assert.Less(t, math.Abs(float64(v)), 2.0)
	}
}

func TestDownsampleProducesFewerSamplesThanInput(t *testing.T) {
	s := New(1, 48000, 24000)
	var out []float32
	in := make([]float32, 2000)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}
	out = s.Process(0, in, out)
	assert.Less(t, len(out), len(in))
}

func TestResetClearsHistory(t *testing.T) {
	s := New(1, 44100, 48000)
	in := make([]float32, 500)
	_ = s.Process(0, in, nil)
	s.Reset()
	assert.Equal(t, float64(s.taps), s.channels[0].nextOut)
	assert.Zero(t, s.channels[0].base)
	assert.Empty(t, s.channels[0].buf)
}
