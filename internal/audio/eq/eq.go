// Package eq implements the 18-band equalizer: the Equalizer value type
// and a per-band biquad peaking-filter chain.
package eq

import "math"

// Bands is the fixed count of EQ bands.
const Bands = 18

// BandCenters are the fixed center frequencies in Hz, in band order.
var BandCenters = [Bands]float64{
	65, 92, 131, 185, 262, 370, 523, 740, 1047, 1480,
	2093, 2960, 4186, 5920, 8372, 11840, 16744, 20000,
}

// Equalizer holds 18 gain scalars in [0,2], 1.0 = unity.
type Equalizer [Bands]float64

// Unity returns an equalizer with every band at 1.0 (no-op gain).
func Unity() Equalizer {
	var e Equalizer
	for i := range e {
		e[i] = 1.0
	}
	return e
}

// Mul returns the elementwise product of e and o.
func (e Equalizer) Mul(o Equalizer) Equalizer {
	var out Equalizer
	for i := range out {
		out[i] = e[i] * o[i]
	}
	return out
}

// Equal reports whether e and o have identical band gains.
func (e Equalizer) Equal(o Equalizer) bool {
	return e == o
}

// IsUnity reports whether every band is exactly 1.0, allowing the chain to
// skip filtering entirely.
func (e Equalizer) IsUnity() bool {
	return e == Unity()
}

// biquad is a direct-form-II transposed biquad section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
}

func (b *biquad) process(x float64) float64 {
	y := b.b0*x + b.z1
	b.z1 = b.b1*x - b.a1*y + b.z2
	b.z2 = b.b2*x - b.a2*y
	return y
}

// peakingCoeffs computes an RBJ peaking-EQ biquad for center frequency fc at
// sample rate fs, with linear gain `gain` (1.0 = unity) and quality factor
// q (SetEqualizer passes 0.9 for every band).
func peakingCoeffs(fc, fs, gain, q float64) (b0, b1, b2, a0, a1, a2 float64) {
	if fc >= fs/2 {
		fc = fs/2 - 1
	}
	A := math.Sqrt(gain)
	w0 := 2 * math.Pi * fc / fs
	alpha := math.Sin(w0) / (2 * q)
	cosw0 := math.Cos(w0)

	b0 = 1 + alpha*A
	b1 = -2 * cosw0
	b2 = 1 - alpha*A
	a0 = 1 + alpha/A
	a1 = -2 * cosw0
	a2 = 1 - alpha/A
	return
}

// Chain is a per-channel 18-band biquad cascade. Coefficients are recomputed
// only when band gains change, via SetEqualizer.
type Chain struct {
	sampleRate float64
	channels   int
	unity      bool
	sections   [][Bands]biquad // one set of 18 sections per channel
	current    Equalizer
}

// NewChain creates a chain for the given sample rate and channel count,
// initialized to unity gain (a no-op passthrough).
func NewChain(sampleRate float64, channels int) *Chain {
	c := &Chain{
		sampleRate: sampleRate,
		channels:   channels,
		unity:      true,
		sections:   make([][Bands]biquad, channels),
		current:    Unity(),
	}
	return c
}

// SetEqualizer recomputes biquad coefficients if e differs from the chain's
// current gains; filter state (z1/z2) is preserved across the change to
// avoid a click, the coefficients alone change.
func (c *Chain) SetEqualizer(e Equalizer) {
	if c.current.Equal(e) {
		return
	}
	c.current = e
	c.unity = e.IsUnity()
	if c.unity {
		return
	}
	for ch := 0; ch < c.channels; ch++ {
		for band := 0; band < Bands; band++ {
			b0, b1, b2, a0, a1, a2 := peakingCoeffs(BandCenters[band], c.sampleRate, e[band], 0.9)
			s := &c.sections[ch][band]
			s.b0, s.b1, s.b2 = b0/a0, b1/a0, b2/a0
			s.a1, s.a2 = a1/a0, a2/a0
		}
	}
}

// Process filters one planar channel buffer in place. channel must be in
// [0, channels).
func (c *Chain) Process(channel int, samples []float32) {
	if c.unity {
		return
	}
	sections := &c.sections[channel]
	for i, x := range samples {
		v := float64(x)
		for b := 0; b < Bands; b++ {
			v = sections[b].process(v)
		}
		samples[i] = float32(v)
	}
}
