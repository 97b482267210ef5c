// Package resample implements the sample-rate conversion stage. A
// fixed-quality windowed-sinc polyphase kernel is used rather than a
// dynamically designed filter; this package keeps per-channel state so
// the fractional phase persists across frames.
package resample

import "math"

// defaultTaps is the half-width of the sinc kernel on each side of the
// interpolation point; total kernel support is 2*defaultTaps+1 samples.
const defaultTaps = 16

// channelState is the per-channel persistent resampling state: a rolling
// window of recently seen input samples plus the global input-domain
// position of the next output sample to produce.
type channelState struct {
	buf []float64
	// base is the global input-sample index of buf[0].
	base int64
	// nextOut is the global input-domain position (fractional) of the next
	// output sample.
	nextOut float64
}

// SRC is a per-path sample-rate converter with one channelState per
// channel. Not safe for concurrent use; each source-path owns its own SRC.
type SRC struct {
	inRate, outRate int
	ratio           float64 // outRate / inRate
	taps            int
	channels        []channelState
}

// New creates a converter for the given channel count, input rate, and
// output rate. When inRate == outRate, Process is a passthrough.
func New(numChannels, inRate, outRate int) *SRC {
	s := &SRC{
		inRate:   inRate,
		outRate:  outRate,
		ratio:    float64(outRate) / float64(inRate),
		taps:     defaultTaps,
		channels: make([]channelState, numChannels),
	}
	for i := range s.channels {
		s.channels[i].nextOut = float64(s.taps)
	}
	return s
}

// Passthrough reports whether input and output rates are identical, in
// which case the stage should be skipped entirely.
func (s *SRC) Passthrough() bool {
	return s.inRate == s.outRate
}

// Reset clears accumulated history and phase, used after a resampler
// error to reinitialize cleanly.
func (s *SRC) Reset() {
	for i := range s.channels {
		s.channels[i] = channelState{nextOut: float64(s.taps)}
	}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates a Blackman window at tap offset n in [0, 2*taps].
func blackman(n, taps int) float64 {
	N := float64(2*taps + 1)
	const a0, a1, a2 = 0.42, 0.5, 0.08
	x := 2 * math.Pi * float64(n) / (N - 1)
	return a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
}

// Process converts one channel's new input samples to the output rate,
// appending results to out and returning the extended slice. Call once per
// channel per frame, in temporal order; history and phase persist across
// calls for that channel.
func (s *SRC) Process(channel int, in []float32, out []float32) []float32 {
	if s.Passthrough() {
		return append(out, in...)
	}

	st := &s.channels[channel]

	// Append new input to the rolling buffer.
	start := len(st.buf)
	st.buf = append(st.buf, make([]float64, len(in))...)
	for i, v := range in {
		st.buf[start+i] = float64(v)
	}

	taps := s.taps
	step := 1.0 / s.ratio

	for {
		needIdx := int(math.Floor(st.nextOut)) - taps - int(st.base)
		lastNeedIdx := int(math.Floor(st.nextOut)) + taps - int(st.base)
		if needIdx < 0 || lastNeedIdx >= len(st.buf) {
			break
		}

		center := st.nextOut - float64(st.base)
		ci := int(math.Floor(center))
		frac := center - float64(ci)

		var acc float64
		for k := -taps; k <= taps; k++ {
			w := sinc(float64(k)-frac) * blackman(k+taps, taps)
			acc += st.buf[ci+k] * w
		}
		out = append(out, float32(acc))
		st.nextOut += step
	}

	// Trim the buffer: drop samples no longer needed by any future output
	// (everything strictly before nextOut-taps).
	keepFrom := int(math.Floor(st.nextOut)) - taps - int(st.base)
	if keepFrom > 0 {
		if keepFrom > len(st.buf) {
			keepFrom = len(st.buf)
		}
		st.buf = append([]float64(nil), st.buf[keepFrom:]...)
		st.base += int64(keepFrom)
	}

	return out
}
