package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/screamrouter/screamrouter/internal/audio/codec"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// RTPReceiver listens for RTP packets (pion/rtp) carrying one of the static
// payload types in codec.RTPFormats. Each distinct SSRC gets its own
// SequenceTracker, since reorder/gap accounting only makes sense per stream.
type RTPReceiver struct {
	conn     *net.UDPConn
	registry *timeshift.Registry
	logger   log.Logger
	stats    Stats

	mu       sync.Mutex
	trackers map[string]*codec.SequenceTracker
}

// NewRTPReceiver binds addr for RTP ingress.
func NewRTPReceiver(addr string, registry *timeshift.Registry, logger log.Logger) (*RTPReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("screamrouter: listen %q: %w", addr, err)
	}
	return &RTPReceiver{
		conn:     conn,
		registry: registry,
		logger:   logger,
		trackers: make(map[string]*codec.SequenceTracker),
	}, nil
}

func (r *RTPReceiver) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || isClosedConnError(err) {
				return nil
			}
			return fmt.Errorf("screamrouter: rtp receiver read: %w", err)
		}
		r.handlePacket(buf[:n])
	}
}

func (r *RTPReceiver) handlePacket(buf []byte) {
	tag, f, seq, payload, err := codec.DecodeRTPPacket(buf)
	if err != nil {
		r.stats.Malformed++
		return
	}

	if !r.trackerFor(tag).Observe(seq) {
		r.stats.PacketsDropped++
		return
	}

	appendToBuffer(r.registry, tag, timeshift.Packet{
		CaptureMonotonicNS: now().UnixNano(),
		Format:             f,
		Payload:            append([]byte(nil), payload...),
	}, &r.stats)
}

func (r *RTPReceiver) trackerFor(tag string) *codec.SequenceTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[tag]
	if !ok {
		t = codec.NewSequenceTracker(16)
		r.trackers[tag] = t
	}
	return t
}

func (r *RTPReceiver) Stats() Stats { return r.stats }
func (r *RTPReceiver) Close() error { return r.conn.Close() }
