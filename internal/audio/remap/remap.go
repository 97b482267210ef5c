// Package remap implements the speaker-layout channel matrix stage: an
// 8x8 input->output channel matrix, either user-supplied or generated by
// a fixed auto-mode rule.
package remap

// Matrix is an 8x8 channel coefficient matrix: Matrix[out][in] is the gain
// applied from input channel `in` into output channel `out`.
type Matrix [8][8]float64

// Apply multiplies the in-channel vector by m, writing exactly
// outChannels values to out. in must have at least inChannels valid
// entries (extra input channels, if any, are read as part of the 8-wide
// matrix but ignored if inChannels < 8).
func (m Matrix) Apply(in []float32, inChannels, outChannels int, out []float32) {
	for o := 0; o < outChannels; o++ {
		var sum float64
		for i := 0; i < inChannels && i < 8; i++ {
			sum += m[o][i] * float64(in[i])
		}
		out[o] = float32(sum)
	}
}

// Identity returns the matrix that copies input channel i to output
// channel i unchanged (used when inChannels == outChannels and no explicit
// user matrix is given).
func Identity() Matrix {
	var m Matrix
	for i := 0; i < 8; i++ {
		m[i][i] = 1.0
	}
	return m
}

// Auto generates the fixed-rule matrix for (inChannels -> outChannels):
// mono broadcasts to all outputs, stereo maps to front L/R, 5.1 follows
// the standard downmix/upmix rules, and so on.
//
// Channel order follows the conventional WAVEFORMATEXTENSIBLE layout:
// 0=FL 1=FR 2=FC 3=LFE 4=BL 5=BR 6=SL 7=SR.
func Auto(inChannels, outChannels int) Matrix {
	switch {
	case inChannels == outChannels:
		return Identity()

	case inChannels == 1:
		// Mono source: broadcast to every output channel (except LFE, which
		// stays silent unless explicitly routed).
		var m Matrix
		for o := 0; o < outChannels; o++ {
			if o == 3 && outChannels > 2 {
				continue // leave LFE silent for mono-to-surround
			}
			m[o][0] = 1.0
		}
		return m

	case outChannels == 1:
		// Downmix to mono: average all non-LFE input channels equally.
		var m Matrix
		count := inChannels
		if inChannels > 3 {
			count = inChannels - 1 // exclude LFE
		}
		if count == 0 {
			count = 1
		}
		g := 1.0 / float64(count)
		for i := 0; i < inChannels && i < 8; i++ {
			if inChannels > 3 && i == 3 {
				continue // skip LFE in the average
			}
			m[0][i] = g
		}
		return m

	case inChannels == 2 && outChannels > 2:
		// Stereo source upmixed to surround: front L/R carry through, other
		// channels stay silent (a center/rear derivation is a mixing
		// decision left to the user via an explicit matrix).
		var m Matrix
		m[0][0] = 1.0
		m[1][1] = 1.0
		return m

	case inChannels > 2 && outChannels == 2:
		// Surround source downmixed to stereo: standard ITU-ish downmix
		// coefficients for front L/R, center, and surrounds; LFE dropped.
		var m Matrix
		const centerGain = 0.707
		const surroundGain = 0.707
		m[0][0] = 1.0      // FL -> L
		m[1][1] = 1.0      // FR -> R
		if inChannels > 2 {
			m[0][2] += centerGain // FC -> L
			m[1][2] += centerGain // FC -> R
		}
		if inChannels > 4 {
			m[0][4] += surroundGain // BL -> L
			m[1][5] += surroundGain // BR -> R
		}
		if inChannels > 6 {
			m[0][6] += surroundGain // SL -> L
			m[1][7] += surroundGain // SR -> R
		}
		return m

	default:
		// Fallback: map channels 1:1 up to min(in,out), silence the rest.
		var m Matrix
		n := inChannels
		if outChannels < n {
			n = outChannels
		}
		for i := 0; i < n; i++ {
			m[i][i] = 1.0
		}
		return m
	}
}
