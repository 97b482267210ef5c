package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/screamrouter/screamrouter/internal/audio/format"
	"github.com/screamrouter/screamrouter/internal/audio/mixer"
	"github.com/screamrouter/screamrouter/internal/audio/mp3"
	"github.com/screamrouter/screamrouter/internal/audio/sourcepath"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// EgressFactory builds the transport-layer sender for a resolved sink.
// Implemented by internal/transport so this package never imports it
// directly (transport depends on the audio packages, not the reverse).
type EgressFactory func(sink ResolvedSink) (mixer.Egress, error)

// Applier owns the live mixer.Sink and sourcepath.Path instances and
// reconciles them to newly solved states one Plan at a time. All Apply
// calls are serialized by mu, so a config push can never race a concurrent
// one — ScreamRouter's control plane pushes state transactionally.
type Applier struct {
	mu sync.Mutex

	timeshiftRegistry *timeshift.Registry
	egressFactory     EgressFactory
	logger            log.Logger
	mp3Enabled        bool

	ctx context.Context

	sinks map[string]*mixer.Sink
	paths map[string]*sourcepath.Path
	mp3s  map[string]*mp3.Encoder
	// pathSink records which sink each path is currently attached to, so
	// Apply can detach it from a mixer.Sink before removal.
	pathSink map[string]string
	// sinkFormats records each live sink's resolved format, since
	// mixer.Sink doesn't expose its Config back out; source-paths need it
	// to size their own output buffers to match.
	sinkFormats map[string]ResolvedSink
}

// NewApplier creates an applier with no live sinks or paths.
func NewApplier(ctx context.Context, registry *timeshift.Registry, egress EgressFactory, logger log.Logger, mp3Enabled bool) *Applier {
	return &Applier{
		ctx:               ctx,
		timeshiftRegistry: registry,
		egressFactory:     egress,
		logger:            logger,
		mp3Enabled:        mp3Enabled,
		sinks:             make(map[string]*mixer.Sink),
		paths:             make(map[string]*sourcepath.Path),
		mp3s:              make(map[string]*mp3.Encoder),
		pathSink:          make(map[string]string),
		sinkFormats:       make(map[string]ResolvedSink),
	}
}

// Apply executes plan in destroy-then-create-then-update order: destroy
// paths, destroy sinks, create sinks, create paths, then update everything
// still standing in place.
func (a *Applier) Apply(plan Plan) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range plan.PathsToDestroy {
		a.destroyPathLocked(id)
	}
	for _, name := range plan.SinksToDestroy {
		a.destroySinkLocked(name)
	}
	for _, sink := range plan.SinksToCreate {
		if err := a.createSinkLocked(sink); err != nil {
			return fmt.Errorf("screamrouter: create sink %q: %w", sink.Name, err)
		}
	}
	for _, path := range plan.PathsToCreate {
		if err := a.createPathLocked(path); err != nil {
			return fmt.Errorf("screamrouter: create path %q: %w", path.PathID, err)
		}
	}
	for _, sink := range plan.SinksToUpdate {
		a.updateSinkLocked(sink)
	}
	for _, path := range plan.PathsToUpdate {
		a.updatePathLocked(path)
	}
	return nil
}

func (a *Applier) createSinkLocked(rs ResolvedSink) error {
	egress, err := a.egressFactory(rs)
	if err != nil {
		return err
	}

	var tee mixer.MP3Tee
	if a.mp3Enabled {
		enc, err := mp3.NewEncoder(rs.SampleRate, rs.Channels)
		if err != nil {
			return fmt.Errorf("mp3 encoder: %w", err)
		}
		a.mp3s[rs.Name] = enc
		tee = enc
	}

	cfg := mixer.Config{
		ID:       rs.Name,
		Protocol: sinkProtocolOf(rs.Protocol),
		Format: format.StreamFormat{
			SampleRate: rs.SampleRate,
			BitDepth:   format.BitDepth(rs.BitDepth),
			Channels:   rs.Channels,
		},
		Volume:           rs.Volume,
		Equalizer:        rs.Equalizer,
		DelayMS:          rs.DelayMS,
		TimeSyncOffsetNS: int64(rs.TimeSyncOffsetMS * 1e6),
	}
	sink := mixer.New(cfg, egress, tee, a.logger)
	sink.Start(a.ctx)
	a.sinks[rs.Name] = sink
	a.sinkFormats[rs.Name] = rs
	return nil
}

func (a *Applier) destroySinkLocked(name string) {
	sink, ok := a.sinks[name]
	if !ok {
		return
	}
	sink.Stop()
	delete(a.sinks, name)
	delete(a.sinkFormats, name)
	if enc, ok := a.mp3s[name]; ok {
		_ = enc.Close()
		delete(a.mp3s, name)
	}
}

func (a *Applier) updateSinkLocked(rs ResolvedSink) {
	sink, ok := a.sinks[rs.Name]
	if !ok {
		return
	}
	sink.UpdateConfig(mixer.Config{
		ID:       rs.Name,
		Protocol: sinkProtocolOf(rs.Protocol),
		Format: format.StreamFormat{
			SampleRate: rs.SampleRate,
			BitDepth:   format.BitDepth(rs.BitDepth),
			Channels:   rs.Channels,
		},
		Volume:           rs.Volume,
		Equalizer:        rs.Equalizer,
		DelayMS:          rs.DelayMS,
		TimeSyncOffsetNS: int64(rs.TimeSyncOffsetMS * 1e6),
	})
	a.sinkFormats[rs.Name] = rs
}

func (a *Applier) createPathLocked(rp ResolvedSourcePath) error {
	sink, ok := a.sinks[rp.SinkName]
	if !ok {
		return fmt.Errorf("no live sink %q for path", rp.SinkName)
	}
	buf := a.timeshiftRegistry.Acquire(rp.Tag)
	path := sourcepath.New(buf, sourcepath.Params{
		Volume:           rp.Volume,
		Equalizer:        rp.Equalizer,
		DelayMS:          rp.DelayMS,
		TimeshiftSec:     rp.TimeshiftSec,
		OutputChannels:   sinkChannelsOf(a, rp.SinkName),
		OutputSampleRate: sinkSampleRateOf(a, rp.SinkName),
		AutoMode:         rp.AutoMode,
		UserMatrix:       rp.UserMatrix,
	})
	a.paths[rp.PathID] = path
	a.pathSink[rp.PathID] = rp.SinkName
	sink.AddPath(rp.PathID, path)
	return nil
}

func (a *Applier) destroyPathLocked(id string) {
	sinkName, ok := a.pathSink[id]
	if ok {
		if sink, ok := a.sinks[sinkName]; ok {
			sink.RemovePath(id)
		}
	}
	if _, ok := a.paths[id]; ok {
		delete(a.paths, id)
	}
	delete(a.pathSink, id)
}

func (a *Applier) updatePathLocked(rp ResolvedSourcePath) {
	path, ok := a.paths[rp.PathID]
	if !ok {
		return
	}
	path.SetParams(sourcepath.Params{
		Volume:           rp.Volume,
		Equalizer:        rp.Equalizer,
		DelayMS:          rp.DelayMS,
		TimeshiftSec:     rp.TimeshiftSec,
		OutputChannels:   sinkChannelsOf(a, rp.SinkName),
		OutputSampleRate: sinkSampleRateOf(a, rp.SinkName),
		AutoMode:         rp.AutoMode,
		UserMatrix:       rp.UserMatrix,
	})
}

// MP3Data drains up to maxBytes of encoded MP3 data for sinkName, or nil if
// the sink has no live MP3 tee (not found, or mp3Enabled was false).
func (a *Applier) MP3Data(sinkName string, maxBytes int) []byte {
	a.mu.Lock()
	enc, ok := a.mp3s[sinkName]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return enc.GetData(maxBytes)
}

// SinkStats returns the live mixer.Sink's stats, or (Stats{}, false) if no
// sink named sinkName is currently running.
func (a *Applier) SinkStats(sinkName string) (mixer.Stats, bool) {
	a.mu.Lock()
	sink, ok := a.sinks[sinkName]
	a.mu.Unlock()
	if !ok {
		return mixer.Stats{}, false
	}
	return sink.GetStats(), true
}

// SinkNames returns a snapshot of every currently live sink name.
func (a *Applier) SinkNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.sinks))
	for name := range a.sinks {
		names = append(names, name)
	}
	return names
}

// PathStats returns the live sourcepath.Path's stats, or (Stats{}, false)
// if pathID isn't currently attached to a sink.
func (a *Applier) PathStats(pathID string) (sourcepath.Stats, bool) {
	a.mu.Lock()
	path, ok := a.paths[pathID]
	a.mu.Unlock()
	if !ok {
		return sourcepath.Stats{}, false
	}
	return path.GetStats(), true
}

// PathIDs returns a snapshot of every currently live path ID.
func (a *Applier) PathIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.paths))
	for id := range a.paths {
		ids = append(ids, id)
	}
	return ids
}

func sinkChannelsOf(a *Applier, sinkName string) int {
	if rs, ok := a.sinkFormats[sinkName]; ok {
		return rs.Channels
	}
	return 2
}

func sinkSampleRateOf(a *Applier, sinkName string) int {
	if rs, ok := a.sinkFormats[sinkName]; ok {
		return rs.SampleRate
	}
	return 48000
}

func sinkProtocolOf(p Protocol) mixer.Protocol {
	if p == ProtocolRTP {
		return mixer.ProtocolRTP
	}
	return mixer.ProtocolScream
}
