package transport

import (
	"fmt"
	"net"

	"github.com/screamrouter/screamrouter/internal/audio/mixer"
)

// UDPEgress sends a sink's packetized output to a fixed destination over a
// connected UDP socket. It implements mixer.Egress.
type UDPEgress struct {
	conn *net.UDPConn
}

// NewUDPEgress dials dest (host:port), returning a sender the mixer.Sink can
// write packets to. Using a connected socket (rather than WriteTo per
// packet) lets the kernel cache the route and surfaces ICMP
// port-unreachable errors back to Send on platforms that support it.
func NewUDPEgress(dest string) (*UDPEgress, error) {
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: resolve egress dest %q: %w", dest, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: dial egress dest %q: %w", dest, err)
	}
	return &UDPEgress{conn: conn}, nil
}

// Send writes payload as a single UDP datagram.
func (e *UDPEgress) Send(payload []byte) error {
	_, err := e.conn.Write(payload)
	return err
}

// Close releases the underlying socket.
func (e *UDPEgress) Close() error {
	return e.conn.Close()
}

var _ mixer.Egress = (*UDPEgress)(nil)
