package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/screamrouter/screamrouter/internal/audio/codec"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// ScreamReceiver listens for the classic Scream UDP packet (5-byte header +
// 1152-byte PCM payload) on a single unicast socket. The sender's IP address
// is the source tag, matching Scream's own one-tag-per-host convention.
type ScreamReceiver struct {
	conn     *net.UDPConn
	registry *timeshift.Registry
	logger   log.Logger
	stats    Stats
}

// NewScreamReceiver binds addr (e.g. ":4010" or "0.0.0.0:4010") and returns a
// receiver ready to Run.
func NewScreamReceiver(addr string, registry *timeshift.Registry, logger log.Logger) (*ScreamReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: listen %q: %w", addr, err)
	}
	return &ScreamReceiver{conn: conn, registry: registry, logger: logger}, nil
}

// Run reads packets until ctx is canceled or the socket errors.
func (r *ScreamReceiver) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	buf := make([]byte, codec.PacketSize+64)
	for {
		n, srcAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || isClosedConnError(err) {
				return nil
			}
			return fmt.Errorf("screamrouter: scream receiver read: %w", err)
		}
		r.handlePacket(buf[:n], srcAddr)
	}
}

func (r *ScreamReceiver) handlePacket(pkt []byte, src *net.UDPAddr) {
	if len(pkt) != codec.PacketSize {
		r.stats.Malformed++
		return
	}
	var header [codec.HeaderSize]byte
	copy(header[:], pkt[:codec.HeaderSize])
	f, err := codec.DecodeScreamHeader(header)
	if err != nil {
		r.stats.Malformed++
		return
	}
	payload := append([]byte(nil), pkt[codec.HeaderSize:]...)

	tag := src.IP.String()
	appendToBuffer(r.registry, tag, timeshift.Packet{
		CaptureMonotonicNS: now().UnixNano(),
		Format:             f,
		Payload:            payload,
	}, &r.stats)
}

// Stats returns a snapshot of this receiver's ingress counters.
func (r *ScreamReceiver) Stats() Stats { return r.stats }

// Close closes the underlying socket, unblocking a pending ReadFromUDP.
func (r *ScreamReceiver) Close() error { return r.conn.Close() }

// PerProcessReceiver listens for the per-process Scream variant (header +
// 45-byte NUL-padded tag + payload), used when a single host multiplexes
// several named audio streams (e.g. one per application) onto one port.
// The source tag combines the sender's IP with the decoded process name so
// that the same process name on two hosts doesn't collide.
type PerProcessReceiver struct {
	conn     *net.UDPConn
	registry *timeshift.Registry
	logger   log.Logger
	stats    Stats
}

// NewPerProcessReceiver binds addr for the per-process packet variant.
func NewPerProcessReceiver(addr string, registry *timeshift.Registry, logger log.Logger) (*PerProcessReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: listen %q: %w", addr, err)
	}
	return &PerProcessReceiver{conn: conn, registry: registry, logger: logger}, nil
}

func (r *PerProcessReceiver) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	buf := make([]byte, codec.PerProcessPacketSize+64)
	for {
		n, srcAddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || isClosedConnError(err) {
				return nil
			}
			return fmt.Errorf("screamrouter: per-process receiver read: %w", err)
		}
		r.handlePacket(buf[:n], srcAddr)
	}
}

func (r *PerProcessReceiver) handlePacket(pkt []byte, src *net.UDPAddr) {
	if len(pkt) != codec.PerProcessPacketSize {
		r.stats.Malformed++
		return
	}
	var header [codec.HeaderSize]byte
	copy(header[:], pkt[:codec.HeaderSize])
	f, err := codec.DecodeScreamHeader(header)
	if err != nil {
		r.stats.Malformed++
		return
	}
	var tagField [codec.TagLength]byte
	copy(tagField[:], pkt[codec.HeaderSize:codec.HeaderSize+codec.TagLength])
	processTag := codec.DecodePerProcessTag(tagField)
	payload := append([]byte(nil), pkt[codec.HeaderSize+codec.TagLength:]...)

	tag := fmt.Sprintf("%s:%s", src.IP.String(), processTag)
	appendToBuffer(r.registry, tag, timeshift.Packet{
		CaptureMonotonicNS: now().UnixNano(),
		Format:             f,
		Payload:            payload,
	}, &r.stats)
}

func (r *PerProcessReceiver) Stats() Stats { return r.stats }
func (r *PerProcessReceiver) Close() error { return r.conn.Close() }
