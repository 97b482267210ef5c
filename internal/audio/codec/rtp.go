package codec

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/screamrouter/screamrouter/internal/audio/format"
)

// RTPFormat associates a static RTP payload type with the PCM format it
// carries.
type RTPFormat struct {
	PayloadType uint8
	Format      format.StreamFormat
	// SamplesPerPacket is the per-channel frame count implied by the
	// payload type's fixed packetization time.
	SamplesPerPacket int
}

// RTPFormats is the static payload-type table. PT 10/11 are the classic
// RTP/AVP static assignments for L16 stereo/mono at 44100Hz; PT 96 is the
// dynamic slot ScreamRouter's own sender uses for 48kHz/16-bit/2ch, included
// here as a configured default rather than a protocol constant.
var RTPFormats = []RTPFormat{
	{PayloadType: 10, Format: format.StreamFormat{SampleRate: 44100, BitDepth: format.BitDepth16, Channels: 2}, SamplesPerPacket: 960},
	{PayloadType: 11, Format: format.StreamFormat{SampleRate: 44100, BitDepth: format.BitDepth16, Channels: 1}, SamplesPerPacket: 960},
	{PayloadType: 96, Format: format.StreamFormat{SampleRate: 48000, BitDepth: format.BitDepth16, Channels: 2}, SamplesPerPacket: 960},
}

// LookupRTPFormat returns the configured format for a payload type, or false
// if the type is not in the static table.
func LookupRTPFormat(pt uint8) (RTPFormat, bool) {
	for _, f := range RTPFormats {
		if f.PayloadType == pt {
			return f, true
		}
	}
	return RTPFormat{}, false
}

// DecodeRTPPacket parses an RTP packet using pion/rtp and resolves its
// payload type against the static table. The returned tag is the packet's
// SSRC formatted as a stable hex string, used as the receiver's source tag.
func DecodeRTPPacket(buf []byte) (tag string, f format.StreamFormat, seq uint16, payload []byte, err error) {
	var pkt rtp.Packet
	if unmarshalErr := pkt.Unmarshal(buf); unmarshalErr != nil {
		return "", format.StreamFormat{}, 0, nil, fmt.Errorf("%w: rtp unmarshal: %v", errInvalidHeader, unmarshalErr)
	}
	rf, ok := LookupRTPFormat(pkt.PayloadType)
	if !ok {
		return "", format.StreamFormat{}, 0, nil, fmt.Errorf("%w: unknown rtp payload type %d", errInvalidHeader, pkt.PayloadType)
	}
	tag = fmt.Sprintf("rtp:%08x", pkt.SSRC)
	return tag, rf.Format, pkt.SequenceNumber, pkt.Payload, nil
}

// EncodeRTPPacket marshals payload into an RTP packet for the given SSRC/
// sequence/timestamp/payload-type, for use by the sink mixer's RTP egress.
func EncodeRTPPacket(ssrc uint32, seq uint16, timestamp uint32, payloadType uint8, payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// SequenceTracker validates monotonic RTP sequence numbers within a bounded
// reordering window. It is safe for concurrent use by a single receiver
// goroutine calling Observe and diagnostics readers calling Stats.
type SequenceTracker struct {
	mu          sync.Mutex
	window      uint16
	haveFirst   bool
	lastSeq     uint16
	reorders    uint64
	discarded   uint64
	gaps        uint64
}

// NewSequenceTracker creates a tracker with the given reordering window
// (packets older than `window` behind the newest-seen sequence are
// discarded as too-late).
func NewSequenceTracker(window uint16) *SequenceTracker {
	if window == 0 {
		window = 16
	}
	return &SequenceTracker{window: window}
}

// Observe reports whether seq should be accepted (in order or within the
// reordering window) or discarded as too old.
func (s *SequenceTracker) Observe(seq uint16) (accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveFirst {
		s.haveFirst = true
		s.lastSeq = seq
		return true
	}

	delta := int32(seq) - int32(s.lastSeq)
	// handle 16-bit wraparound
	if delta > 32768 {
		delta -= 65536
	} else if delta < -32768 {
		delta += 65536
	}

	switch {
	case delta > 0:
		if delta > 1 {
			s.gaps++
		}
		s.lastSeq = seq
		return true
	case delta == 0:
		s.discarded++
		return false
	default:
		// Packet arrived out of order. Accept if within the reordering window.
		if -delta <= int32(s.window) {
			s.reorders++
			return true
		}
		s.discarded++
		return false
	}
}

// Stats returns (reorders, gaps, discarded) counters for diagnostics.
func (s *SequenceTracker) Stats() (reorders, gaps, discarded uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reorders, s.gaps, s.discarded
}
