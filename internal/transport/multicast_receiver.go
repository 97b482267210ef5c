package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/screamrouter/screamrouter/internal/audio/codec"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// MulticastReceiver joins the canonical Scream multicast group and decodes
// the same packet shape as ScreamReceiver. Kept as a distinct type (rather
// than a constructor flag on ScreamReceiver) because the socket setup is
// genuinely different: ListenMulticastUDP plus an optional interface bind.
type MulticastReceiver struct {
	conn     *net.UDPConn
	registry *timeshift.Registry
	logger   log.Logger
	stats    Stats
}

// NewMulticastReceiver joins codec.MulticastGroup:codec.MulticastPort on
// iface (nil selects the system default multicast interface).
func NewMulticastReceiver(iface *net.Interface, registry *timeshift.Registry, logger log.Logger) (*MulticastReceiver, error) {
	group := &net.UDPAddr{IP: net.ParseIP(codec.MulticastGroup), Port: codec.MulticastPort}
	conn, err := net.ListenMulticastUDP("udp", iface, group)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: join multicast %s:%d: %w", codec.MulticastGroup, codec.MulticastPort, err)
	}
	return &MulticastReceiver{conn: conn, registry: registry, logger: logger}, nil
}

func (r *MulticastReceiver) Run(ctx context.Context) error {
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
			return fmt.Errorf("screamrouter: multicast receiver read: %w", err)
		}
		r.handlePacket(buf[:n], srcAddr)
	}
}

func (r *MulticastReceiver) handlePacket(pkt []byte, src *net.UDPAddr) {
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

func (r *MulticastReceiver) Stats() Stats { return r.stats }
func (r *MulticastReceiver) Close() error { return r.conn.Close() }
