// Package format defines the StreamFormat value type shared by the codec,
// timeshift, source-path, and mixer packages.
package format

import "fmt"

// BitDepth is a sample's width in bits.
type BitDepth int

const (
	BitDepth16 BitDepth = 16
	BitDepth24 BitDepth = 24
	BitDepth32 BitDepth = 32
)

func (b BitDepth) Valid() bool {
	return b == BitDepth16 || b == BitDepth24 || b == BitDepth32
}

func (b BitDepth) Bytes() int {
	return int(b) / 8
}

// StreamFormat is the immutable description of a PCM stream's shape, parsed
// from (or about to be formatted into) a 5-byte Scream header.
//
// Equality ignores ChannelLayout — two formats with the same rate/depth/
// channels are equal regardless of the opaque WAVEFORMATEXTENSIBLE bytes.
type StreamFormat struct {
	SampleRate int
	BitDepth   BitDepth
	Channels   int
	// ChannelLayout is the two opaque WAVEFORMATEXTENSIBLE bytes, preserved
	// verbatim on egress but never interpreted.
	ChannelLayout [2]byte
}

// Equal compares sample rate, bit depth, and channel count only.
func (f StreamFormat) Equal(o StreamFormat) bool {
	return f.SampleRate == o.SampleRate && f.BitDepth == o.BitDepth && f.Channels == o.Channels
}

// Validate checks that sample rate is a base (44100 or 48000) times a
// multiplier in {1,2,4}, bit depth is in {16,24,32}, and channels is in
// [1,8].
func (f StreamFormat) Validate() error {
	if !f.BitDepth.Valid() {
		return fmt.Errorf("invalid bit depth %d", f.BitDepth)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if !validSampleRate(f.SampleRate) {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	return nil
}

func validSampleRate(rate int) bool {
	for _, base := range [2]int{44100, 48000} {
		for _, mult := range [3]int{1, 2, 4} {
			if rate == base*mult {
				return true
			}
		}
	}
	return false
}

// BytesPerFrame returns the number of bytes one multi-channel sample frame
// occupies at this format (one sample per channel).
func (f StreamFormat) BytesPerFrame() int {
	return f.BitDepth.Bytes() * f.Channels
}

// SamplesPerPacket returns how many per-channel sample frames fit in the
// canonical 1152-byte Scream payload at this format. Payload size is fixed;
// frame count varies with bit depth and channel count.
func (f StreamFormat) SamplesPerPacket(payloadBytes int) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return payloadBytes / bpf
}

func (f StreamFormat) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}
