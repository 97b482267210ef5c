package timeshift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamrouter/screamrouter/internal/audio/format"
)

func testFormat() format.StreamFormat {
	return format.StreamFormat{SampleRate: 48000, BitDepth: format.BitDepth16, Channels: 2}
}

func TestBufferAppendAndReadAt(t *testing.T) {
	b := NewBuffer(1)
	now := int64(time.Second)
	for i := int64(0); i < 5; i++ {
		b.Append(Packet{CaptureMonotonicNS: i * int64(time.Millisecond) * 10, Format: testFormat(), Payload: []byte{byte(i)}})
	}
	pkt, ok := b.ReadAt(40*int64(time.Millisecond), 0)
	require.True(t, ok)
	assert.Equal(t, byte(4), pkt.Payload[0])

	// target = 40ms - 15ms = 25ms; greatest captured timestamp <= 25ms is t=20ms.
	pkt2, ok := b.ReadAt(40*int64(time.Millisecond), 15*int64(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, byte(2), pkt2.Payload[0])
}

func TestBufferReadAtTooFarInPastReturnsFalse(t *testing.T) {
	b := NewBuffer(1)
	b.Append(Packet{CaptureMonotonicNS: int64(time.Second), Format: testFormat(), Payload: []byte{1}})
	_, ok := b.ReadAt(int64(time.Second), int64(10*time.Second))
	assert.False(t, ok)
}

func TestBufferEmptyReadAt(t *testing.T) {
	b := NewBuffer(1)
	_, ok := b.ReadAt(0, 0)
	assert.False(t, ok)
}

func TestBufferEvictsOldestOnOverflow(t *testing.T) {
	b := NewBuffer(1)
	capacity := b.Cap()
	for i := 0; i < capacity+10; i++ {
		b.Append(Packet{CaptureMonotonicNS: int64(i), Payload: []byte{byte(i)}})
	}
	assert.Equal(t, capacity, b.Len())
	assert.Equal(t, uint64(10), b.Evictions())
}

func TestBufferReadAtCopiesPayload(t *testing.T) {
	b := NewBuffer(1)
	payload := []byte{1, 2, 3}
	b.Append(Packet{CaptureMonotonicNS: 100, Payload: payload})
	pkt, ok := b.ReadAt(100, 0)
	require.True(t, ok)
	pkt.Payload[0] = 99
	assert.Equal(t, byte(1), payload[0], "ReadAt must copy, not alias, the stored payload")
}

func TestBufferJitterEstimate(t *testing.T) {
	b := NewBuffer(1)
	const nominal = int64(10 * time.Millisecond)
	ts := int64(0)
	for i := 0; i < 50; i++ {
		ts += nominal
		b.Append(Packet{CaptureMonotonicNS: ts})
	}
	assert.InDelta(t, 0, b.JitterEstimateMS(), 0.5)

	// introduce a burst of jitter
	for i := 0; i < 5; i++ {
		ts += nominal * 3
		b.Append(Packet{CaptureMonotonicNS: ts})
	}
	assert.Greater(t, b.JitterEstimateMS(), 0.0)
}
