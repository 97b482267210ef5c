package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamrouter/screamrouter/internal/audio/format"
)

func TestScreamHeaderRoundTrip(t *testing.T) {
	cases := []format.StreamFormat{
		{SampleRate: 48000, BitDepth: format.BitDepth16, Channels: 2, ChannelLayout: [2]byte{0x03, 0x00}},
		{SampleRate: 44100, BitDepth: format.BitDepth24, Channels: 6, ChannelLayout: [2]byte{0x3F, 0x06}},
		{SampleRate: 192000, BitDepth: format.BitDepth32, Channels: 8, ChannelLayout: [2]byte{0xFF, 0xFF}},
		{SampleRate: 176400, BitDepth: format.BitDepth16, Channels: 1, ChannelLayout: [2]byte{0x00, 0x00}},
	}

	for _, f := range cases {
		h, err := EncodeScreamHeader(f)
		require.NoError(t, err)

		decoded, err := DecodeScreamHeader(h)
		require.NoError(t, err)
		assert.True(t, f.Equal(decoded))
		assert.Equal(t, f.ChannelLayout, decoded.ChannelLayout)

		h2, err := EncodeScreamHeader(decoded)
		require.NoError(t, err)
		assert.Equal(t, h, h2)
	}
}

func TestDecodeScreamHeaderRejectsInvalidBitDepth(t *testing.T) {
	h := [HeaderSize]byte{0x00, 20, 2, 0, 0}
	_, err := DecodeScreamHeader(h)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestDecodeScreamHeaderRejectsZeroChannels(t *testing.T) {
	h := [HeaderSize]byte{0x00, 16, 0, 0, 0}
	_, err := DecodeScreamHeader(h)
	require.Error(t, err)
}

func TestDecodeScreamHeaderRejectsTooManyChannels(t *testing.T) {
	h := [HeaderSize]byte{0x00, 16, 9, 0, 0}
	_, err := DecodeScreamHeader(h)
	require.Error(t, err)
}

func TestDecodeScreamHeaderMultiplierZeroTreatedAsOne(t *testing.T) {
	h := [HeaderSize]byte{0x80, 16, 2, 0, 0} // base=44100, k=0 -> treated as 1
	f, err := DecodeScreamHeader(h)
	require.NoError(t, err)
	assert.Equal(t, 44100, f.SampleRate)
}

func TestPerProcessTagRoundTrip(t *testing.T) {
	tag := "192.168.1.5:firefox.exe"
	encoded := EncodePerProcessTag(tag)
	decoded := DecodePerProcessTag(encoded)
	assert.Equal(t, tag, decoded)
}

func TestPerProcessTagTruncatesOverlong(t *testing.T) {
	long := "this-tag-is-way-too-long-to-fit-into-forty-five-bytes-of-space"
	encoded := EncodePerProcessTag(long)
	decoded := DecodePerProcessTag(encoded)
	assert.Equal(t, long[:TagLength], decoded)
}

func TestSamplesPerPacket(t *testing.T) {
	f := format.StreamFormat{SampleRate: 48000, BitDepth: format.BitDepth16, Channels: 2}
	assert.Equal(t, 288, f.SamplesPerPacket(PayloadSize))

	f32 := format.StreamFormat{SampleRate: 48000, BitDepth: format.BitDepth32, Channels: 2}
	assert.Equal(t, 144, f32.SamplesPerPacket(PayloadSize))
}
