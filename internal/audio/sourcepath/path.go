// Package sourcepath implements the per-path_id DSP pipeline: read from
// the timeshift buffer at a read-head offset, channel remap, sample-rate
// conversion, 18-band EQ, integer-sample delay, and gain, producing
// fixed-size frames for the sink mixer.
package sourcepath

import (
	"sync"
	"time"

	"github.com/screamrouter/screamrouter/internal/audio/eq"
	"github.com/screamrouter/screamrouter/internal/audio/format"
	"github.com/screamrouter/screamrouter/internal/audio/remap"
	"github.com/screamrouter/screamrouter/internal/audio/resample"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
)

// crossfadeMinMS is the minimum cross-fade duration for volume changes. EQ
// changes are not cross-faded: the new coefficients apply from the next
// frame.
const crossfadeMinMS = 8.0

// Params is the subset of source-path fields that drive the DSP pipeline,
// as composed by the configuration solver.
type Params struct {
	Volume              float64
	Equalizer           eq.Equalizer
	DelayMS             float64
	TimeshiftSec        float64
	OutputChannels      int
	OutputSampleRate    int
	AutoMode            bool
	UserMatrix          remap.Matrix
	VolumeNormalization bool
	EQNormalization     bool
}

// Stats exposes the per-path counters.
type Stats struct {
	InputQueueSize            int
	OutputQueueSize           int
	PacketsProcessedPerSecond float64
	Underruns                 uint64
}

// Path is one flat source->sink edge's DSP pipeline. It is driven by
// repeated calls to Produce from the owning sink mixer or work-pool item;
// it is not safe for concurrent Produce calls, but SetParams may be
// called from any goroutine.
type Path struct {
	buf *timeshift.Buffer

	mu          sync.Mutex
	active      Params
	pending     *Params
	crossfading bool
	xfadeFrom   float64 // volume at start of an in-progress crossfade
	xfadeSamplesLeft int
	xfadeSamplesTotal int

	// decode/processing state, touched only from Produce's goroutine.
	lastPacketTS int64
	haveLast     bool
	eqChain      *eq.Chain
	matrix       remap.Matrix
	srcs         []*resample.SRC
	srcInRate    int
	delay        *delayLine

	// fifo holds fully-processed interleaved output samples awaiting
	// consumption by Produce, at OutputChannels width.
	fifo []float32

	underruns        uint64
	packetsProcessed uint64
	windowStart      time.Time
	windowCount      uint64
	packetsPerSecond float64
}

// New creates a path reading from buf with the given initial composed
// parameters.
func New(buf *timeshift.Buffer, p Params) *Path {
	path := &Path{
		buf:         buf,
		active:      p,
		eqChain:     eq.NewChain(float64(p.OutputSampleRate), p.OutputChannels),
		matrix:      matrixFor(p, p.OutputChannels, p.OutputChannels),
		windowStart: time.Now(),
	}
	path.eqChain.SetEqualizer(p.Equalizer)
	path.delay = newDelayLine(p.OutputChannels, delaySamples(p.DelayMS, p.OutputSampleRate))
	return path
}

func matrixFor(p Params, inChannels, outChannels int) remap.Matrix {
	if p.AutoMode {
		return remap.Auto(inChannels, outChannels)
	}
	return p.UserMatrix
}

func delaySamples(delayMS float64, rate int) int {
	if delayMS <= 0 {
		return 0
	}
	n := int(delayMS * float64(rate) / 1000.0)
	if n < 0 {
		n = 0
	}
	return n
}

// SetParams queues new parameters to take effect at the next frame
// boundary rather than mid-frame.
func (p *Path) SetParams(newParams Params) {
	p.mu.Lock()
	defer p.mu.Unlock()
	np := newParams
	p.pending = &np
}

// Produce generates the next frame of k sample-frames (k*OutputChannels
// interleaved float32 values) at nowNS. It decodes as many new packets from
// the timeshift buffer as needed to satisfy k, emitting silence and
// counting an underrun for any shortfall.
func (p *Path) Produce(nowNS int64, k int) []float32 {
	p.applyPendingParams(k)

	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	needed := k * active.OutputChannels

	for len(p.fifo) < needed {
		pkt, ok := p.nextPacket(nowNS, active)
		if !ok {
			break
		}
		p.ingest(pkt, active)
	}

	out := make([]float32, needed)
	if len(p.fifo) >= needed {
		copy(out, p.fifo[:needed])
		p.fifo = p.fifo[needed:]
	} else {
		copy(out, p.fifo)
		p.fifo = p.fifo[:0]
		p.underruns++
	}

	p.applyGainAndCrossfade(out, active, k)
	p.packetsProcessed++
	p.windowCount++
	if d := time.Since(p.windowStart); d >= time.Second {
		p.packetsPerSecond = float64(p.windowCount) / d.Seconds()
		p.windowCount = 0
		p.windowStart = time.Now()
	}
	return out
}

// nextPacket fetches the packet currently active at the path's read head
// (now - timeshift_sec), returning ok=false if it is the same packet
// already ingested (no new data yet) or no packet exists at all.
func (p *Path) nextPacket(nowNS int64, active Params) (timeshift.Packet, bool) {
	offsetNS := int64(-active.TimeshiftSec * float64(time.Second))
	pkt, ok := p.buf.ReadAt(nowNS, offsetNS)
	if !ok {
		return timeshift.Packet{}, false
	}
	if p.haveLast && pkt.CaptureMonotonicNS == p.lastPacketTS {
		return timeshift.Packet{}, false
	}
	p.lastPacketTS = pkt.CaptureMonotonicNS
	p.haveLast = true
	return pkt, true
}

// ingest runs one decoded packet through remap -> resample -> EQ -> delay,
// appending the result to the fifo. Gain is applied later in Produce so the
// crossfade window can see the post-pipeline samples uniformly.
func (p *Path) ingest(pkt timeshift.Packet, active Params) {
	in, inChannels := decodePlanarInterleaved(pkt.Format, pkt.Payload)
	if inChannels == 0 {
		return
	}
	samples := len(in) / inChannels

	if p.matrix == (remap.Matrix{}) || active.AutoMode {
		p.matrix = matrixFor(active, inChannels, active.OutputChannels)
	}

	remapped := make([]float32, samples*active.OutputChannels)
	frame := make([]float32, inChannels)
	outFrame := make([]float32, active.OutputChannels)
	for s := 0; s < samples; s++ {
		copy(frame, in[s*inChannels:(s+1)*inChannels])
		p.matrix.Apply(frame, inChannels, active.OutputChannels, outFrame)
		copy(remapped[s*active.OutputChannels:(s+1)*active.OutputChannels], outFrame)
	}

	if p.srcs == nil || p.srcInRate != pkt.Format.SampleRate {
		p.srcs = make([]*resample.SRC, active.OutputChannels)
		for c := range p.srcs {
			p.srcs[c] = resample.New(1, pkt.Format.SampleRate, active.OutputSampleRate)
		}
		p.srcInRate = pkt.Format.SampleRate
	}

	planarIn := make([][]float32, active.OutputChannels)
	for c := range planarIn {
		planarIn[c] = make([]float32, samples)
		for s := 0; s < samples; s++ {
			planarIn[c][s] = remapped[s*active.OutputChannels+c]
		}
	}

	var planarOut [][]float32
	maxLen := 0
	for c := 0; c < active.OutputChannels; c++ {
		out := p.srcs[c].Process(0, planarIn[c], nil)
		p.eqChain.Process(c, out)
		planarOut = append(planarOut, out)
		if len(out) > maxLen {
			maxLen = len(out)
		}
	}

	interleaved := make([]float32, maxLen*active.OutputChannels)
	for c, ch := range planarOut {
		for s, v := range ch {
			interleaved[s*active.OutputChannels+c] = v
		}
	}

	p.delay.resize(delaySamples(active.DelayMS, active.OutputSampleRate))
	p.delay.process(interleaved, active.OutputChannels)

	p.fifo = append(p.fifo, interleaved...)
}

// applyPendingParams swaps in queued parameters at a frame boundary and
// arms a volume crossfade if the volume changed.
func (p *Path) applyPendingParams(k int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return
	}
	next := *p.pending
	p.pending = nil

	if next.Volume != p.active.Volume {
		p.xfadeFrom = p.active.Volume
		total := int(crossfadeMinMS * float64(next.OutputSampleRate) / 1000.0)
		if total < k {
			total = k
		}
		p.xfadeSamplesTotal = total
		p.xfadeSamplesLeft = total
		p.crossfading = true
	}

	if next.OutputChannels != p.active.OutputChannels || next.OutputSampleRate != p.active.OutputSampleRate {
		p.eqChain = eq.NewChain(float64(next.OutputSampleRate), next.OutputChannels)
		p.srcs = nil
		p.delay = newDelayLine(next.OutputChannels, delaySamples(next.DelayMS, next.OutputSampleRate))
		p.fifo = nil
	}
	p.eqChain.SetEqualizer(next.Equalizer)
	p.active = next
}

// applyGainAndCrossfade multiplies out by the active volume, linearly
// ramping from the pre-change volume over the crossfade window to avoid
// zipper noise.
func (p *Path) applyGainAndCrossfade(out []float32, active Params, k int) {
	p.mu.Lock()
	crossfading := p.crossfading
	from := p.xfadeFrom
	left := p.xfadeSamplesLeft
	total := p.xfadeSamplesTotal
	p.mu.Unlock()

	channels := active.OutputChannels
	if channels == 0 {
		return
	}

	if !crossfading {
		gain := float32(active.Volume)
		for i := range out {
			out[i] *= gain
		}
		return
	}

	for s := 0; s < k; s++ {
		var gain float64
		if left <= 0 {
			gain = active.Volume
		} else {
			t := 1.0 - float64(left)/float64(total)
			gain = from + (active.Volume-from)*t
			left--
		}
		for c := 0; c < channels; c++ {
			idx := s*channels + c
			if idx < len(out) {
				out[idx] *= float32(gain)
			}
		}
	}

	p.mu.Lock()
	p.xfadeSamplesLeft = left
	if left <= 0 {
		p.crossfading = false
	}
	p.mu.Unlock()
}

// GetStats returns a snapshot of the path's diagnostic counters.
func (p *Path) GetStats() Stats {
	return Stats{
		InputQueueSize:            p.buf.Len(),
		OutputQueueSize:           len(p.fifo),
		PacketsProcessedPerSecond: p.packetsPerSecond,
		Underruns:                 p.underruns,
	}
}

// decodePlanarInterleaved converts a raw PCM payload to interleaved float32
// samples in [-1,1] given its format, returning the channel count used.
func decodePlanarInterleaved(f format.StreamFormat, payload []byte) ([]float32, int) {
	if f.Channels == 0 {
		return nil, 0
	}
	bpf := f.BitDepth.Bytes()
	if bpf == 0 {
		return nil, 0
	}
	n := len(payload) / bpf
	out := make([]float32, n)
	switch f.BitDepth {
	case format.BitDepth16:
		for i := 0; i < n; i++ {
			v := int16(uint16(payload[i*2]) | uint16(payload[i*2+1])<<8)
			out[i] = float32(v) / 32768.0
		}
	case format.BitDepth24:
		for i := 0; i < n; i++ {
			b0, b1, b2 := payload[i*3], payload[i*3+1], payload[i*3+2]
			v := int32(b0) | int32(b1)<<8 | int32(b2)<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			out[i] = float32(v) / 8388608.0
		}
	case format.BitDepth32:
		for i := 0; i < n; i++ {
			v := int32(uint32(payload[i*4]) | uint32(payload[i*4+1])<<8 | uint32(payload[i*4+2])<<16 | uint32(payload[i*4+3])<<24)
			out[i] = float32(v) / 2147483648.0
		}
	}
	return out, f.Channels
}
