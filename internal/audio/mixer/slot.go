package mixer

import "sync/atomic"

// slot is a seqlocked per-source-path frame buffer. Sink.AddPath allocates
// one for every path, but Sink.cycle pulls each frame directly from the
// path's FrameProducer and does not read the slot.
type slot struct {
	seq  atomic.Uint64
	data atomic.Pointer[[]float32]
}

// write publishes a new frame for this slot using a seqlock: odd seq means
// a writer is in flight. Readers that observe an odd seq, or a seq that
// changed mid-read, retry or treat the slot as stale.
func (s *slot) write(frame []float32) {
	s.seq.Add(1) // now odd: write in progress
	s.data.Store(&frame)
	s.seq.Add(1) // now even: write complete
}

// read returns the most recently published frame, or nil if none has been
// written yet or a write was in progress at read time (treated as a miss —
// the mixer substitutes silence for that path this cycle rather than
// blocking).
func (s *slot) read() []float32 {
	seq1 := s.seq.Load()
	if seq1%2 != 0 {
		return nil
	}
	p := s.data.Load()
	seq2 := s.seq.Load()
	if seq1 != seq2 || p == nil {
		return nil
	}
	return *p
}
