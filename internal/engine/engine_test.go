package engine

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamrouter/screamrouter/internal/audio"
	"github.com/screamrouter/screamrouter/internal/audio/codec"
	"github.com/screamrouter/screamrouter/internal/audio/eq"
	"github.com/screamrouter/screamrouter/internal/audio/format"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/internal/config"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// TestEngineRoutesLoopbackUDPSourceToSink feeds one Scream packet into the
// engine's unicast receiver and confirms a mixed packet comes out the
// configured sink destination.
func TestEngineRoutesLoopbackUDPSourceToSink(t *testing.T) {
	egressListener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer egressListener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := New(ctx, Config{
		ScreamUnicastAddr:    "127.0.0.1:0",
		ScreamPerProcessAddr: "127.0.0.1:0",
		RTPAddr:              "127.0.0.1:0",
		MP3Enabled:           false,
	}, log.Nop(), nil)
	require.NoError(t, err)
	defer e.Close()

	desired := config.DesiredState{
		Sources: []config.Source{{Name: "src", Tag: "192.0.2.1", Enabled: true, Volume: 1.0, Equalizer: eq.Unity()}},
		Sinks: []config.Sink{{
			Name: "sink", Enabled: true, Protocol: config.ProtocolScream,
			Destination: egressListener.LocalAddr().String(),
			SampleRate:  48000, BitDepth: 16, Channels: 2,
			Volume: 1.0, Equalizer: eq.Unity(),
		}},
		Routes: []config.Route{{Name: "r", Source: "src", Sink: "sink", Enabled: true, Volume: 1.0, Equalizer: eq.Unity(), AutoMode: true}},
	}
	require.NoError(t, e.ApplyState(ctx, desired))

	buf, ok := e.registry.Lookup("192.0.2.1")
	require.True(t, ok)

	payload := make([]byte, codec.PayloadSize)
	for i := range payload {
		payload[i] = 0x11
	}
	buf.Append(timeshift.Packet{
		CaptureMonotonicNS: time.Now().UnixNano(),
		Format:             format.StreamFormat{SampleRate: 48000, BitDepth: 16, Channels: 2},
		Payload:            payload,
	})

	egressListener.SetReadDeadline(time.Now().Add(3 * time.Second))
	out := make([]byte, 4096)
	n, _, err := egressListener.ReadFromUDP(out)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, codec.HeaderSize)
}

func TestEngineExportPCMReturnsInjectedHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := New(ctx, Config{
		ScreamUnicastAddr:    "127.0.0.1:0",
		ScreamPerProcessAddr: "127.0.0.1:0",
		RTPAddr:              "127.0.0.1:0",
	}, log.Nop(), nil)
	require.NoError(t, err)
	defer e.Close()

	desired := config.DesiredState{
		Sources: []config.Source{{Name: "src", Tag: "tag:history", Enabled: true, Volume: 1.0, Equalizer: eq.Unity()}},
		Sinks: []config.Sink{{
			Name: "sink", Enabled: true, Protocol: config.ProtocolScream,
			Destination: "127.0.0.1:1", SampleRate: 48000, BitDepth: 16, Channels: 2,
			Volume: 1.0, Equalizer: eq.Unity(),
		}},
		Routes: []config.Route{{Name: "r", Source: "src", Sink: "sink", Enabled: true, Volume: 1.0, Equalizer: eq.Unity(), AutoMode: true}},
	}
	require.NoError(t, e.ApplyState(ctx, desired))

	buf, ok := e.registry.Lookup("tag:history")
	require.True(t, ok)
	payload := make([]byte, codec.PayloadSize)
	buf.Append(timeshift.Packet{
		CaptureMonotonicNS: time.Now().UnixNano(),
		Format:             format.StreamFormat{SampleRate: 48000, BitDepth: 16, Channels: 2},
		Payload:            payload,
	})

	pcm, f, _, _, ok := e.ExportPCM("tag:history", 5.0)
	require.True(t, ok)
	require.Equal(t, codec.PayloadSize, len(pcm))
	require.Equal(t, 48000, f.SampleRate)
}

func TestEngineExportPCMUnknownTagNotOK(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(ctx, Config{ScreamUnicastAddr: "127.0.0.1:0", ScreamPerProcessAddr: "127.0.0.1:0", RTPAddr: "127.0.0.1:0"}, log.Nop(), nil)
	require.NoError(t, err)
	defer e.Close()

	_, _, _, _, ok := e.ExportPCM("no-such-tag", 5.0)
	require.False(t, ok)
}

// TestEngineApplyStateRejectsInvalidSinkWithoutTouchingLiveState feeds a
// desired state with a zero-channel sink and confirms ApplyState rejects
// the whole transaction before any sink or path is created.
func TestEngineApplyStateRejectsInvalidSinkWithoutTouchingLiveState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, err := New(ctx, Config{ScreamUnicastAddr: "127.0.0.1:0", ScreamPerProcessAddr: "127.0.0.1:0", RTPAddr: "127.0.0.1:0"}, log.Nop(), nil)
	require.NoError(t, err)
	defer e.Close()

	desired := config.DesiredState{
		Sources: []config.Source{{Name: "src", Tag: "192.0.2.1", Enabled: true, Volume: 1.0, Equalizer: eq.Unity()}},
		Sinks: []config.Sink{{
			Name: "bad-sink", Enabled: true, Protocol: config.ProtocolScream,
			Destination: "127.0.0.1:1", SampleRate: 48000, BitDepth: 16, Channels: 0,
			Volume: 1.0, Equalizer: eq.Unity(),
		}},
		Routes: []config.Route{{Name: "r", Source: "src", Sink: "bad-sink", Enabled: true, Volume: 1.0, Equalizer: eq.Unity(), AutoMode: true}},
	}

	err = e.ApplyState(ctx, desired)
	require.Error(t, err)
	require.True(t, errors.Is(err, audio.ErrConfigRejected))
	assert.Empty(t, e.GetStats().Sinks)
	assert.Empty(t, e.GetStats().Paths)
}
