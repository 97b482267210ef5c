package mixer

import (
	"math"

	"github.com/screamrouter/screamrouter/internal/audio/format"
)

// clamp restricts v to [-1, 1].
func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// quantize converts a clamped float32 mix buffer to the sink's bit depth
// using round-half-to-even. Dither is not applied.
func quantize(samples []float32, depth format.BitDepth) []byte {
	bpf := depth.Bytes()
	out := make([]byte, len(samples)*bpf)
	switch depth {
	case format.BitDepth16:
		const scale = 32767.0
		for i, v := range samples {
			s := roundHalfToEven(float64(clamp(v)) * scale)
			s16 := clampFloat(s, -32768, 32767)
			u := uint16(int16(s16))
			out[i*2] = byte(u)
			out[i*2+1] = byte(u >> 8)
		}
	case format.BitDepth24:
		const scale = 8388607.0
		for i, v := range samples {
			s := roundHalfToEven(float64(clamp(v)) * scale)
			s24 := int32(clampFloat(s, -8388608, 8388607))
			out[i*3] = byte(s24)
			out[i*3+1] = byte(s24 >> 8)
			out[i*3+2] = byte(s24 >> 16)
		}
	case format.BitDepth32:
		const scale = 2147483647.0
		for i, v := range samples {
			s := roundHalfToEven(float64(clamp(v)) * scale)
			s32 := int32(clampFloat(s, -2147483648, 2147483647))
			u := uint32(s32)
			out[i*4] = byte(u)
			out[i*4+1] = byte(u >> 8)
			out[i*4+2] = byte(u >> 16)
			out[i*4+3] = byte(u >> 24)
		}
	}
	return out
}

func roundHalfToEven(v float64) float64 {
	return math.RoundToEven(v)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
