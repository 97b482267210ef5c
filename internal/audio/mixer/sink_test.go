package mixer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamrouter/screamrouter/internal/audio/eq"
	"github.com/screamrouter/screamrouter/internal/audio/format"
)

type fakeProducer struct {
	amplitude float32
	channels  int
}

func (f *fakeProducer) Produce(nowNS int64, k int) []float32 {
	out := make([]float32, k*f.channels)
	for i := range out {
		out[i] = f.amplitude
	}
	return out
}

type captureEgress struct {
	mu      sync.Mutex
	packets [][]byte
}

func (c *captureEgress) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), payload...)
	c.packets = append(c.packets, cp)
	return nil
}

func (c *captureEgress) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func testConfig() Config {
	return Config{
		ID:       "sink-1",
		Protocol: ProtocolScream,
		Format:   format.StreamFormat{SampleRate: 48000, BitDepth: format.BitDepth16, Channels: 2},
		Volume:   1.0,
		Equalizer: eq.Unity(),
	}
}

func TestSinkCycleMixesActivePaths(t *testing.T) {
	s := New(testConfig(), nil, nil, nil)
	s.AddPath("path-a", &fakeProducer{amplitude: 0.25, channels: 2})
	s.AddPath("path-b", &fakeProducer{amplitude: 0.25, channels: 2})

	n := s.cycle(s.frameSamples())
	assert.Greater(t, n, 0)
	assert.Equal(t, int32(2), s.activeStreams.Load())
}

func TestSinkCycleSkipsSilentPaths(t *testing.T) {
	s := New(testConfig(), nil, nil, nil)
	s.AddPath("path-a", &fakeProducer{amplitude: 0, channels: 2})

	s.cycle(s.frameSamples())
	assert.Equal(t, int32(0), s.activeStreams.Load())
}

func TestSinkSendsScreamPacketsWithHeader(t *testing.T) {
	eg := &captureEgress{}
	cfg := testConfig()
	s := New(cfg, eg, nil, nil)
	s.AddPath("path-a", &fakeProducer{amplitude: 0.1, channels: 2})

	s.cycle(s.frameSamples())

	require.Equal(t, 1, eg.count())
	pkt := eg.packets[0]
	require.GreaterOrEqual(t, len(pkt), 5)
	assert.Equal(t, byte(16), pkt[1])
	assert.Equal(t, byte(2), pkt[2])
}

func TestSinkStartStopTransitionsState(t *testing.T) {
	s := New(testConfig(), &captureEgress{}, nil, nil)
	assert.Equal(t, StateInit, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	assert.Equal(t, StateRunning, s.State())

	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestSinkUpdateConfigAppliesVolumeInPlace(t *testing.T) {
	eg := &captureEgress{}
	s := New(testConfig(), eg, nil, nil)
	s.AddPath("path-a", &fakeProducer{amplitude: 1.0, channels: 2})

	next := testConfig()
	next.Volume = 0.0
	s.UpdateConfig(next)

	n := s.cycle(s.frameSamples())
	assert.Greater(t, n, 0)
	require.Equal(t, 1, eg.count())
	payload := eg.packets[0][5:]
	assert.Equal(t, make([]byte, len(payload)), payload, "volume 0 must produce a silent payload")
}

func TestClampRestrictsToUnitRange(t *testing.T) {
	assert.Equal(t, float32(1), clamp(1.5))
	assert.Equal(t, float32(-1), clamp(-2))
	assert.Equal(t, float32(0.3), clamp(0.3))
}

func TestQuantize16BitRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	out := quantize(samples, format.BitDepth16)
	require.Len(t, out, 10)
	for i, want := range samples {
		got := float64(int16(uint16(out[i*2])|uint16(out[i*2+1])<<8)) / 32767.0
		assert.InDelta(t, float64(want), got, 1.0/32767)
	}
}
