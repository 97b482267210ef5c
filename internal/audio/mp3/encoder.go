// Package mp3 implements the per-sink MP3 tee: the pre-quantization float
// mix is encoded to a constant-bitrate MP3 stream and held in a bounded
// byte queue for polling consumers (the web UI's live listen stream).
package mp3

import (
	"sync"

	"github.com/viert/lame"
)

const (
	// streamSampleRate is the fixed output rate every sink's MP3 tee
	// resamples/encodes to, matching the original ffmpeg-based encoder's
	// "-ar 44100 -ac 2" output stage.
	streamSampleRate = 44100
	streamChannels   = 2
	streamBitrateKbps = 320

	// maxQueueBytes bounds how much encoded audio a stalled consumer can
	// leave buffered before the oldest bytes are dropped.
	maxQueueBytes = 1 << 20 // 1 MiB, about 26 seconds of 320kbps MP3
)

// byteQueue is a bounded FIFO of encoded bytes. When full, the oldest bytes
// are dropped to make room — a slow consumer falls behind rather than
// blocking the encoder.
type byteQueue struct {
	mu      sync.Mutex
	buf     []byte
	dropped uint64
}

func (q *byteQueue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, p...)
	if excess := len(q.buf) - maxQueueBytes; excess > 0 {
		q.buf = q.buf[excess:]
		q.dropped += uint64(excess)
	}
	return len(p), nil
}

// Take removes and returns up to maxBytes from the front of the queue.
func (q *byteQueue) Take(maxBytes int) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if maxBytes > len(q.buf) {
		maxBytes = len(q.buf)
	}
	out := append([]byte(nil), q.buf[:maxBytes]...)
	q.buf = q.buf[maxBytes:]
	return out
}

func (q *byteQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Encoder is a per-sink live MP3 encoder. It is not safe for concurrent
// Write calls (the owning sink's single mixer goroutine is the only
// writer); GetData and Dropped may be called from any goroutine.
type Encoder struct {
	mu      sync.Mutex
	queue   *byteQueue
	writer  *lame.LameWriter
	pcmBuf  []byte
	closed  bool
}

// NewEncoder creates an encoder for a stream at sourceRate/sourceChannels,
// resampling internally to the fixed streaming format via libmp3lame's own
// resampler.
func NewEncoder(sourceRate, sourceChannels int) (*Encoder, error) {
	q := &byteQueue{}
	w := lame.NewWriter(q)
	w.Encoder.SetInSamplerate(sourceRate)
	w.Encoder.SetNumChannels(sourceChannels)
	w.Encoder.SetOutSamplerate(streamSampleRate)
	w.Encoder.SetBitrate(streamBitrateKbps)
	w.Encoder.SetMode(lame.STEREO)
	w.Encoder.SetVBR(lame.VBR_OFF)
	if err := w.Encoder.InitParams(); err != nil {
		return nil, err
	}
	return &Encoder{queue: q, writer: w}, nil
}

// Write encodes one mix frame of interleaved float32 samples in [-1, 1].
// Satisfies internal/audio/mixer.MP3Tee.
func (e *Encoder) Write(mix []float32, channels int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	need := len(mix) * 2
	if cap(e.pcmBuf) < need {
		e.pcmBuf = make([]byte, need)
	}
	e.pcmBuf = e.pcmBuf[:need]
	for i, v := range mix {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * 32767)
		e.pcmBuf[i*2] = byte(uint16(s))
		e.pcmBuf[i*2+1] = byte(uint16(s) >> 8)
	}
	_, err := e.writer.Write(e.pcmBuf)
	return err
}

// GetData drains up to maxBytes of encoded MP3 data for a polling consumer.
func (e *Encoder) GetData(maxBytes int) []byte {
	return e.queue.Take(maxBytes)
}

// Dropped returns the number of encoded bytes discarded because the queue
// was full.
func (e *Encoder) Dropped() uint64 {
	return e.queue.Dropped()
}

// Close flushes the encoder and releases the underlying lame context.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.writer.Close()
}
