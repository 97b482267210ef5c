// Package transport implements the UDP ingress (Scream unicast, Scream
// multicast, Scream per-process, RTP) and egress (Scream, RTP) endpoints,
// plus a supervisor that restarts a receiver after a fatal socket error.
package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// Receiver runs until ctx is canceled or a fatal error occurs.
type Receiver interface {
	Run(ctx context.Context) error
	Close() error
}

// Stats are the shared ingress counters every receiver variant maintains.
type Stats struct {
	PacketsReceived uint64
	PacketsDropped  uint64
	UnknownTag      uint64
	Malformed       uint64
}

// now is overridable in tests that need a deterministic clock; production
// code always calls time.Now().
var now = time.Now

// appendToBuffer looks up tag in the registry and, if some path currently
// subscribes to it, appends pkt. Unregistered tags are dropped without
// allocating a buffer.
func appendToBuffer(registry *timeshift.Registry, tag string, pkt timeshift.Packet, stats *Stats) {
	buf, ok := registry.Lookup(tag)
	if !ok {
		stats.UnknownTag++
		return
	}
	buf.Append(pkt)
	stats.PacketsReceived++
}

// Supervisor restarts a Receiver with exponential backoff after it returns
// a fatal error, matching the data-plane's "degrade, don't crash" posture:
// a dead UDP socket is reopened rather than taking the process down.
type Supervisor struct {
	name     string
	factory  func() (Receiver, error)
	logger   log.Logger
	minDelay time.Duration
	maxDelay time.Duration
}

// NewSupervisor wraps a Receiver factory (called each time a fresh Receiver
// needs to be created, e.g. after a socket is closed) with restart logic.
func NewSupervisor(name string, factory func() (Receiver, error), logger log.Logger) *Supervisor {
	return &Supervisor{
		name:     name,
		factory:  factory,
		logger:   logger,
		minDelay: 100 * time.Millisecond,
		maxDelay: 10 * time.Second,
	}
}

// Run blocks until ctx is canceled, restarting the receiver on every
// non-context error with exponential backoff that resets after a clean
// 30-second run.
func (s *Supervisor) Run(ctx context.Context) {
	delay := s.minDelay
	for {
		if ctx.Err() != nil {
			return
		}
		recv, err := s.factory()
		if err != nil {
			s.logger.Errorf("%s: failed to start receiver: %v", s.name, err)
			if !sleepOrDone(ctx, delay) {
				return
			}
			delay = nextBackoff(delay, s.maxDelay)
			continue
		}

		started := now()
		runErr := recv.Run(ctx)
		_ = recv.Close()

		if ctx.Err() != nil {
			return
		}
		if runErr == nil || errors.Is(runErr, context.Canceled) {
			return
		}

		s.logger.Errorf("%s: receiver exited: %v; restarting", s.name, runErr)
		if now().Sub(started) > 30*time.Second {
			delay = s.minDelay
		}
		if !sleepOrDone(ctx, delay) {
			return
		}
		delay = nextBackoff(delay, s.maxDelay)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isClosedConnError reports whether err is the expected error from a
// net.Conn.Read/ReadFromUDP call racing a concurrent Close.
func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
