// Package codec parses and formats the wire headers for the Scream,
// Scream-per-process, and RTP protocol variants.
package codec

import (
	"fmt"

	"github.com/screamrouter/screamrouter/internal/audio/format"
)

const (
	// HeaderSize is the 5-byte Scream header: rate byte, depth byte,
	// channels byte, two layout bytes.
	HeaderSize = 5
	// PayloadSize is the canonical Scream PCM payload size.
	PayloadSize = 1152
	// PacketSize is header + payload for the unicast/multicast variant.
	PacketSize = HeaderSize + PayloadSize
	// TagLength is the NUL-padded ASCII tag length for the per-process variant.
	TagLength = 45
	// PerProcessPacketSize is header + tag + payload.
	PerProcessPacketSize = HeaderSize + TagLength + PayloadSize

	// MulticastGroup is the canonical Scream multicast group.
	MulticastGroup = "239.255.77.77"
	// MulticastPort is the canonical Scream multicast port.
	MulticastPort = 4010
)

// DecodeScreamHeader parses the 5-byte Scream header:
//
//	byte 0: bit 7 selects base (1 -> 44100, 0 -> 48000); bits 0..6 are an
//	        unsigned multiplier k, treated as 1 when zero.
//	byte 1: bit depth (16/24/32)
//	byte 2: channel count
//	bytes 3-4: opaque channel layout mask, preserved verbatim
func DecodeScreamHeader(h [HeaderSize]byte) (format.StreamFormat, error) {
	base := 48000
	if h[0]&0x80 != 0 {
		base = 44100
	}
	mult := int(h[0] & 0x7F)
	if mult == 0 {
		mult = 1
	}

	f := format.StreamFormat{
		SampleRate:    base * mult,
		BitDepth:      format.BitDepth(h[1]),
		Channels:      int(h[2]),
		ChannelLayout: [2]byte{h[3], h[4]},
	}
	if err := f.Validate(); err != nil {
		return format.StreamFormat{}, fmt.Errorf("%w: %v", errInvalidHeader, err)
	}
	return f, nil
}

// EncodeScreamHeader is the inverse of DecodeScreamHeader: it formats f into
// a 5-byte header, rejecting sample rates that cannot be expressed as
// base*k with k in {1,2,4}.
func EncodeScreamHeader(f format.StreamFormat) ([HeaderSize]byte, error) {
	if err := f.Validate(); err != nil {
		return [HeaderSize]byte{}, fmt.Errorf("%w: %v", errInvalidHeader, err)
	}

	var rateByte byte
	switch {
	case f.SampleRate%44100 == 0:
		k := f.SampleRate / 44100
		rateByte = 0x80 | byte(k&0x7F)
	case f.SampleRate%48000 == 0:
		k := f.SampleRate / 48000
		rateByte = byte(k & 0x7F)
	default:
		return [HeaderSize]byte{}, fmt.Errorf("%w: sample rate %d is not a multiple of 44100 or 48000", errInvalidHeader, f.SampleRate)
	}

	var h [HeaderSize]byte
	h[0] = rateByte
	h[1] = byte(f.BitDepth)
	h[2] = byte(f.Channels)
	h[3] = f.ChannelLayout[0]
	h[4] = f.ChannelLayout[1]
	return h, nil
}

// DecodePerProcessTag reads the 45-byte NUL-padded ASCII tag that follows
// the Scream header in the per-process variant.
func DecodePerProcessTag(b [TagLength]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// EncodePerProcessTag formats tag into a 45-byte NUL-padded field, truncating
// if necessary.
func EncodePerProcessTag(tag string) [TagLength]byte {
	var out [TagLength]byte
	n := copy(out[:], tag)
	_ = n
	return out
}
