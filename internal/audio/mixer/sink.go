// Package mixer implements the per-sink mixer: pacing loop, per-path input
// slots, sink-level gain/EQ/delay, quantization, and egress packetization.
package mixer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/screamrouter/screamrouter/internal/audio/codec"
	"github.com/screamrouter/screamrouter/internal/audio/eq"
	"github.com/screamrouter/screamrouter/internal/audio/format"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// State is the sink lifecycle state machine.
type State int

const (
	StateInit State = iota
	StateRunning
	StateStopped
)

// Protocol selects the egress wire format.
type Protocol int

const (
	ProtocolScream Protocol = iota
	ProtocolRTP
)

// FrameProducer is satisfied by internal/audio/sourcepath.Path: one call
// per pacing tick returns the path's next frame of k interleaved samples.
type FrameProducer interface {
	Produce(nowNS int64, k int) []float32
}

// Egress sends one fully-framed wire packet (header + payload) to the
// sink's configured UDP destination. Implemented by internal/transport.
type Egress interface {
	Send(payload []byte) error
}

// MP3Tee receives the pre-quantization float mix for MP3 encoding.
// Implemented by internal/audio/mp3.Encoder.
type MP3Tee interface {
	Write(mix []float32, channels int) error
}

// Config is a sink's structural + parameter configuration.
type Config struct {
	ID               string
	Protocol         Protocol
	Format           format.StreamFormat
	Volume           float64
	Equalizer        eq.Equalizer
	DelayMS          float64
	TimeSyncOffsetNS int64
	RTPSSRC          uint32
}

// Sink is one output endpoint's mixer.
type Sink struct {
	mu     sync.Mutex
	cfg    Config
	state  atomic.Int32
	egress Egress
	mp3    MP3Tee
	logger log.Logger

	paths map[string]*pathEntry

	eqChain    *eq.Chain
	delayRing  [][]float32
	delayPos   int
	delayLen   int

	cancel context.CancelFunc
	done   chan struct{}

	rtpSeq uint16
	rtpTS  uint32

	activeStreams atomic.Int32
	totalStreams  atomic.Int32
	mixedPerSec   atomic.Value // float64
	sendErrors    atomic.Uint64
}

type pathEntry struct {
	slot     *slot
	producer FrameProducer
}

// New creates a sink in StateInit. Call Start to begin its pacing loop.
func New(cfg Config, egress Egress, mp3 MP3Tee, logger log.Logger) *Sink {
	s := &Sink{
		cfg:     cfg,
		egress:  egress,
		mp3:     mp3,
		logger:  logger,
		paths:   make(map[string]*pathEntry),
		eqChain: eq.NewChain(float64(cfg.Format.SampleRate), cfg.Format.Channels),
	}
	s.eqChain.SetEqualizer(cfg.Equalizer)
	s.resizeDelay(delaySamplesFor(cfg.DelayMS, cfg.Format.SampleRate))
	s.mixedPerSec.Store(0.0)
	return s
}

func delaySamplesFor(ms float64, rate int) int {
	if ms <= 0 {
		return 0
	}
	n := int(ms * float64(rate) / 1000.0)
	if n < 0 {
		return 0
	}
	return n
}

func (s *Sink) resizeDelay(length int) {
	s.delayLen = length
	s.delayRing = make([][]float32, s.cfg.Format.Channels)
	for c := range s.delayRing {
		s.delayRing[c] = make([]float32, length)
	}
	s.delayPos = 0
}

// AddPath registers a source-path's producer under pathID, creating its
// input slot.
func (s *Sink) AddPath(pathID string, producer FrameProducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[pathID] = &pathEntry{slot: &slot{}, producer: producer}
	s.totalStreams.Add(1)
}

// RemovePath deregisters a path.
func (s *Sink) RemovePath(pathID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, pathID)
}

// UpdateConfig applies in-place parameter changes; parameter updates
// never require tearing down and recreating the sink.
func (s *Sink) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	structuralChanged := cfg.Format != s.cfg.Format
	s.cfg.Volume = cfg.Volume
	s.cfg.Equalizer = cfg.Equalizer
	s.cfg.DelayMS = cfg.DelayMS
	s.cfg.TimeSyncOffsetNS = cfg.TimeSyncOffsetNS
	s.eqChain.SetEqualizer(cfg.Equalizer)
	if structuralChanged {
		s.cfg.Format = cfg.Format
		s.resizeDelay(delaySamplesFor(cfg.DelayMS, cfg.Format.SampleRate))
	} else {
		newLen := delaySamplesFor(cfg.DelayMS, cfg.Format.SampleRate)
		if newLen != s.delayLen {
			s.resizeDelay(newLen)
		}
	}
}

// Start begins the sink's pacing loop (StateInit -> StateRunning).
func (s *Sink) Start(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateInit), int32(StateRunning)) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
}

// State returns the sink's current lifecycle state.
func (s *Sink) State() State {
	return State(s.state.Load())
}

// Stop transitions StateRunning -> StateStopped, joining the pacing
// goroutine with a bounded wait.
func (s *Sink) Stop() {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		s.state.Store(int32(StateStopped))
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Sink) frameSamples() int {
	return s.cfg.Format.SamplesPerPacket(codec.PayloadSize)
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	frameSamples := s.frameSamples()
	period := time.Duration(float64(frameSamples) / float64(s.cfg.Format.SampleRate) * float64(time.Second))
	if period <= 0 {
		period = 24 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	windowStart := time.Now()
	var windowPackets int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cycle(frameSamples); n > 0 {
				windowPackets++
			}
			if d := time.Since(windowStart); d >= time.Second {
				rate := float64(windowPackets) / d.Seconds()
				s.mixedPerSec.Store(rate)
				windowPackets = 0
				windowStart = time.Now()
			}
		}
	}
}

// cycle runs one mixer iteration — accumulate active paths, filter,
// gain, delay, tee to MP3, quantize, send — returning the number of
// egress payload bytes sent.
func (s *Sink) cycle(frameSamples int) int {
	s.mu.Lock()
	cfg := s.cfg
	entries := make([]*pathEntry, 0, len(s.paths))
	for _, e := range s.paths {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	channels := cfg.Format.Channels
	mix := make([]float32, frameSamples*channels)

	now := time.Now().UnixNano()
	active := 0
	for _, e := range entries {
		frame := e.producer.Produce(now, frameSamples)
		if frame == nil {
			continue
		}
		hasSignal := false
		for i, v := range frame {
			if i < len(mix) {
				mix[i] += v
				if v != 0 {
					hasSignal = true
				}
			}
		}
		if hasSignal {
			active++
		}
	}
	s.activeStreams.Store(int32(active))

	for c := 0; c < channels; c++ {
		s.eqChain.Process(c, sliceChannel(mix, c, channels))
	}

	gain := float32(cfg.Volume)
	for i := range mix {
		mix[i] *= gain
	}

	s.applyDelay(mix, channels)

	preQuant := append([]float32(nil), mix...)
	if s.mp3 != nil {
		_ = s.mp3.Write(preQuant, channels)
	}

	for i, v := range mix {
		mix[i] = clamp(v)
	}
	pcm := quantize(mix, cfg.Format.BitDepth)

	sent, err := s.sendEgress(cfg, pcm)
	if err != nil {
		s.sendErrors.Add(1)
		if s.logger != nil {
			s.logger.Warnf("sink %s: egress send error: %v", cfg.ID, err)
		}
	}
	return sent
}

func sliceChannel(interleaved []float32, channel, channels int) []float32 {
	// The eq.Chain processes a contiguous per-channel buffer; for an
	// interleaved mix we build one, filter, and scatter back.
	n := len(interleaved) / channels
	buf := make([]float32, n)
	for i := 0; i < n; i++ {
		buf[i] = interleaved[i*channels+channel]
	}
	return buf
}

func (s *Sink) applyDelay(mix []float32, channels int) {
	if s.delayLen == 0 || channels == 0 {
		return
	}
	n := len(mix) / channels
	for i := 0; i < n; i++ {
		for c := 0; c < channels && c < len(s.delayRing); c++ {
			idx := i*channels + c
			ring := s.delayRing[c]
			delayed := ring[s.delayPos]
			ring[s.delayPos] = mix[idx]
			mix[idx] = delayed
		}
		s.delayPos++
		if s.delayPos >= s.delayLen {
			s.delayPos = 0
		}
	}
}

func (s *Sink) sendEgress(cfg Config, pcm []byte) (int, error) {
	var packet []byte
	switch cfg.Protocol {
	case ProtocolRTP:
		s.rtpSeq++
		s.rtpTS += uint32(len(pcm) / cfg.Format.BitDepth.Bytes() / cfg.Format.Channels)
		encoded, err := codec.EncodeRTPPacket(cfg.RTPSSRC, s.rtpSeq, s.rtpTS, 96, pcm)
		if err != nil {
			return 0, err
		}
		packet = encoded
	default:
		header, err := codec.EncodeScreamHeader(cfg.Format)
		if err != nil {
			return 0, err
		}
		packet = make([]byte, 0, len(header)+len(pcm))
		packet = append(packet, header[:]...)
		packet = append(packet, pcm...)
	}

	if s.egress == nil {
		return len(pcm), nil
	}
	if err := s.egress.Send(packet); err != nil {
		return 0, err
	}
	return len(pcm), nil
}

// Stats returns the per-sink statistics.
type Stats struct {
	ActiveInputStreams     int32
	TotalInputStreams      int32
	PacketsMixedPerSecond  float64
	SendErrors             uint64
}

func (s *Sink) GetStats() Stats {
	rate, _ := s.mixedPerSec.Load().(float64)
	return Stats{
		ActiveInputStreams:    s.activeStreams.Load(),
		TotalInputStreams:     s.totalStreams.Load(),
		PacketsMixedPerSecond: rate,
		SendErrors:            s.sendErrors.Load(),
	}
}
