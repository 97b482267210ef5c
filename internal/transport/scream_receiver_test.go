package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamrouter/screamrouter/internal/audio/codec"
	"github.com/screamrouter/screamrouter/internal/audio/format"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/pkg/log"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScreamReceiverRoutesRegisteredTag(t *testing.T) {
	registry := timeshift.NewRegistry(10)
	recv, err := NewScreamReceiver("127.0.0.1:0", registry, log.Nop())
	require.NoError(t, err)
	defer recv.Close()

	localAddr := recv.conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx)

	sender, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer sender.Close()

	senderLocalIP := sender.LocalAddr().(*net.UDPAddr).IP.String()
	buf := registry.Acquire(senderLocalIP)
	defer registry.Release(senderLocalIP)

	header, err := codec.EncodeScreamHeader(format.StreamFormat{SampleRate: 48000, BitDepth: 16, Channels: 2})
	require.NoError(t, err)
	pkt := append(header[:], make([]byte, codec.PayloadSize)...)
	_, err = sender.Write(pkt)
	require.NoError(t, err)

	waitUntil(t, 2*time.Second, func() bool { return buf.Len() == 1 })
}

func TestScreamReceiverDropsUnknownTag(t *testing.T) {
	registry := timeshift.NewRegistry(10)
	recv, err := NewScreamReceiver("127.0.0.1:0", registry, log.Nop())
	require.NoError(t, err)
	defer recv.Close()

	localAddr := recv.conn.LocalAddr().(*net.UDPAddr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx)

	sender, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer sender.Close()

	header, err := codec.EncodeScreamHeader(format.StreamFormat{SampleRate: 48000, BitDepth: 16, Channels: 2})
	require.NoError(t, err)
	pkt := append(header[:], make([]byte, codec.PayloadSize)...)
	_, err = sender.Write(pkt)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), recv.Stats().UnknownTag)
}

func TestScreamReceiverDropsMalformedPacket(t *testing.T) {
	registry := timeshift.NewRegistry(10)
	recv, err := NewScreamReceiver("127.0.0.1:0", registry, log.Nop())
	require.NoError(t, err)
	defer recv.Close()

	localAddr := recv.conn.LocalAddr().(*net.UDPAddr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx)

	sender, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Write([]byte{1, 2})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), recv.Stats().Malformed)
}

func TestPerProcessReceiverCombinesIPAndTag(t *testing.T) {
	registry := timeshift.NewRegistry(10)
	recv, err := NewPerProcessReceiver("127.0.0.1:0", registry, log.Nop())
	require.NoError(t, err)
	defer recv.Close()

	localAddr := recv.conn.LocalAddr().(*net.UDPAddr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx)

	sender, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer sender.Close()

	senderLocalIP := sender.LocalAddr().(*net.UDPAddr).IP.String()
	tag := senderLocalIP + ":firefox.exe"
	buf := registry.Acquire(tag)
	defer registry.Release(tag)

	header, err := codec.EncodeScreamHeader(format.StreamFormat{SampleRate: 44100, BitDepth: 16, Channels: 2})
	require.NoError(t, err)
	tagField := codec.EncodePerProcessTag("firefox.exe")
	pkt := append(append(header[:], tagField[:]...), make([]byte, codec.PayloadSize)...)
	_, err = sender.Write(pkt)
	require.NoError(t, err)

	waitUntil(t, 2*time.Second, func() bool { return buf.Len() == 1 })
}
