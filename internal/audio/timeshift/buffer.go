// Package timeshift implements the per-source-tag rolling packet history
// that backs negative-delay playback.
package timeshift

import (
	"sync"
	"time"

	"github.com/screamrouter/screamrouter/internal/audio/format"
)

// Packet is one received PCM packet anchored to a monotonic capture
// timestamp.
type Packet struct {
	CaptureMonotonicNS int64
	Format             format.StreamFormat
	Payload            []byte
}

// defaultPacketsPerSecond is the packet rate used to size the ring for
// MaxHistorySeconds. 48kHz stereo 32-bit audio in 1152B payloads arrives
// at about 333 packets/s; 343 is above that.
const defaultPacketsPerSecond = 343

// Buffer is a bounded ring of recent packets for one source_tag. Contract:
// single writer (the owning receiver goroutine), many readers; the lock is
// held only for pointer/index bookkeeping, never across I/O, and readers
// copy the payload out before releasing it.
type Buffer struct {
	mu   sync.Mutex
	ring []Packet
	// head is the index the next Append will write to.
	head int
	// size is the number of valid entries currently in the ring.
	size int

	evictions uint64
	appends   uint64

	jitter jitterEstimator
}

// NewBuffer creates a ring sized to hold maxHistorySeconds of packets at the
// worst-case packet rate.
func NewBuffer(maxHistorySeconds int) *Buffer {
	if maxHistorySeconds <= 0 {
		maxHistorySeconds = 300
	}
	capacity := maxHistorySeconds * defaultPacketsPerSecond
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		ring:   make([]Packet, capacity),
		jitter: newJitterEstimator(),
	}
}

// Append adds pkt to the ring, evicting the oldest entry on overflow
// (policy: newest-wins).
func (b *Buffer) Append(pkt Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size > 0 {
		prevIdx := (b.head - 1 + len(b.ring)) % len(b.ring)
		b.jitter.observe(pkt.CaptureMonotonicNS - b.ring[prevIdx].CaptureMonotonicNS)
	}

	b.ring[b.head] = pkt
	b.head = (b.head + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	} else {
		b.evictions++
	}
	b.appends++
}

// ReadAt returns the packet whose capture timestamp is the greatest value
// <= nowNS-offsetNS, or (Packet{}, false) if no such packet exists (offset
// too far in the past, or the ring is empty) — the caller substitutes
// silence in that case.
func (b *Buffer) ReadAt(nowNS int64, offsetNS int64) (Packet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return Packet{}, false
	}

	target := nowNS - offsetNS

	// Walk backward from the most recently written entry.
	best := -1
	idx := (b.head - 1 + len(b.ring)) % len(b.ring)
	for i := 0; i < b.size; i++ {
		if b.ring[idx].CaptureMonotonicNS <= target {
			best = idx
			break
		}
		idx = (idx - 1 + len(b.ring)) % len(b.ring)
	}
	if best == -1 {
		return Packet{}, false
	}

	src := b.ring[best]
	cp := Packet{
		CaptureMonotonicNS: src.CaptureMonotonicNS,
		Format:             src.Format,
		Payload:            append([]byte(nil), src.Payload...),
	}
	return cp, true
}

// Export concatenates up to lookbackSec of history ending at nowNS into one
// contiguous PCM slab, in chronological order, along with the format of the
// most recent packet included and the age (in seconds, relative to nowNS)
// of the earliest and latest packets returned. Returns ok=false if the
// buffer holds nothing.
func (b *Buffer) Export(nowNS int64, lookbackSec float64) (pcm []byte, f format.StreamFormat, earliestAgeS, latestAgeS float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil, format.StreamFormat{}, 0, 0, false
	}

	cutoffNS := nowNS - int64(lookbackSec*float64(time.Second))

	var selected []Packet
	idx := (b.head - 1 + len(b.ring)) % len(b.ring)
	for i := 0; i < b.size; i++ {
		pkt := b.ring[idx]
		if pkt.CaptureMonotonicNS < cutoffNS {
			break
		}
		selected = append(selected, pkt)
		idx = (idx - 1 + len(b.ring)) % len(b.ring)
	}
	if len(selected) == 0 {
		return nil, format.StreamFormat{}, 0, 0, false
	}

	// selected is newest-first; reverse into chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}

	total := 0
	for _, p := range selected {
		total += len(p.Payload)
	}
	out := make([]byte, 0, total)
	for _, p := range selected {
		out = append(out, p.Payload...)
	}

	f = selected[len(selected)-1].Format
	earliestAgeS = float64(nowNS-selected[0].CaptureMonotonicNS) / float64(time.Second)
	latestAgeS = float64(nowNS-selected[len(selected)-1].CaptureMonotonicNS) / float64(time.Second)
	return out, f, earliestAgeS, latestAgeS, true
}

// Len returns the number of packets currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the ring's capacity.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Evictions returns the total number of packets evicted for overflow.
func (b *Buffer) Evictions() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evictions
}

// JitterEstimateMS returns a rolling EWMA of inter-arrival deviation from
// nominal cadence, in milliseconds.
func (b *Buffer) JitterEstimateMS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jitter.estimateMS()
}

// jitterEstimator tracks an EWMA of |actual_interval - nominal_interval|.
// The nominal interval is learned as an EWMA of observed intervals itself,
// so it adapts to whatever cadence the source is actually running at.
type jitterEstimator struct {
	haveNominal bool
	nominalNS   float64
	jitterNS    float64
}

const jitterAlpha = 0.1

func newJitterEstimator() jitterEstimator {
	return jitterEstimator{}
}

func (j *jitterEstimator) observe(intervalNS int64) {
	if intervalNS <= 0 {
		return
	}
	f := float64(intervalNS)
	if !j.haveNominal {
		j.nominalNS = f
		j.haveNominal = true
		return
	}
	deviation := f - j.nominalNS
	if deviation < 0 {
		deviation = -deviation
	}
	j.jitterNS = jitterAlpha*deviation + (1-jitterAlpha)*j.jitterNS
	j.nominalNS = jitterAlpha*f + (1-jitterAlpha)*j.nominalNS
}

func (j *jitterEstimator) estimateMS() float64 {
	return j.jitterNS / float64(time.Millisecond)
}
