// Package engine is the audio plane's top-level facade: it wires the UDP
// receivers, the timeshift registry, the configuration applier, and the
// metrics instruments into a single object the control plane drives
// through ApplyState, GetMP3Data, ExportPCM, and GetStats.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/screamrouter/screamrouter/internal/audio/format"
	"github.com/screamrouter/screamrouter/internal/audio/mixer"
	"github.com/screamrouter/screamrouter/internal/audio/sourcepath"
	"github.com/screamrouter/screamrouter/internal/audio/timeshift"
	"github.com/screamrouter/screamrouter/internal/config"
	"github.com/screamrouter/screamrouter/internal/stats"
	"github.com/screamrouter/screamrouter/internal/transport"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// Config controls the engine's listen addresses and buffer sizing. Fields
// left zero take the defaults noted per field.
type Config struct {
	// ScreamUnicastAddr is the bind address for the classic Scream receiver.
	// Default ":4010".
	ScreamUnicastAddr string
	// ScreamPerProcessAddr is the bind address for the per-process variant.
	// Default ":16402".
	ScreamPerProcessAddr string
	// RTPAddr is the bind address for RTP ingress. Default ":4011".
	RTPAddr string
	// EnableMulticast joins the canonical Scream multicast group in
	// addition to the unicast receiver.
	EnableMulticast bool

	// MaxHistorySeconds sizes every timeshift buffer. Default 300.
	MaxHistorySeconds int
	// MP3Enabled turns on the per-sink MP3 tee. The zero value leaves it
	// off; screamrouterd sets it from mp3_enabled, which defaults to true.
	MP3Enabled bool
}

func (c Config) withDefaults() Config {
	if c.ScreamUnicastAddr == "" {
		c.ScreamUnicastAddr = ":4010"
	}
	if c.ScreamPerProcessAddr == "" {
		c.ScreamPerProcessAddr = ":16402"
	}
	if c.RTPAddr == "" {
		c.RTPAddr = ":4011"
	}
	if c.MaxHistorySeconds == 0 {
		c.MaxHistorySeconds = 300
	}
	return c
}

// Engine owns every live audio-plane resource for the lifetime of the
// process. Exactly one Engine runs per screamrouterd instance.
type Engine struct {
	cfg      Config
	registry *timeshift.Registry
	applier  *config.Applier
	metrics  *stats.Metrics
	logger   log.Logger

	solved config.SolvedState

	cancel context.CancelFunc
}

// New builds an Engine and starts its ingress receivers, but applies no
// configuration yet — call ApplyState to bring up sinks and paths.
func New(ctx context.Context, cfg Config, logger log.Logger, metrics *stats.Metrics) (*Engine, error) {
	cfg = cfg.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)

	registry := timeshift.NewRegistry(cfg.MaxHistorySeconds)

	egressFactory := func(rs config.ResolvedSink) (mixer.Egress, error) {
		return transport.NewUDPEgress(rs.Destination)
	}
	applier := config.NewApplier(runCtx, registry, egressFactory, logger, cfg.MP3Enabled)

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		applier:  applier,
		metrics:  metrics,
		logger:   logger,
		cancel:   cancel,
	}

	e.startReceivers(runCtx)
	return e, nil
}

func (e *Engine) startReceivers(ctx context.Context) {
	screamSup := transport.NewSupervisor("scream-unicast", func() (transport.Receiver, error) {
		return transport.NewScreamReceiver(e.cfg.ScreamUnicastAddr, e.registry, e.logger)
	}, e.logger)
	go screamSup.Run(ctx)

	perProcessSup := transport.NewSupervisor("scream-per-process", func() (transport.Receiver, error) {
		return transport.NewPerProcessReceiver(e.cfg.ScreamPerProcessAddr, e.registry, e.logger)
	}, e.logger)
	go perProcessSup.Run(ctx)

	rtpSup := transport.NewSupervisor("rtp", func() (transport.Receiver, error) {
		return transport.NewRTPReceiver(e.cfg.RTPAddr, e.registry, e.logger)
	}, e.logger)
	go rtpSup.Run(ctx)

	if e.cfg.EnableMulticast {
		mcastSup := transport.NewSupervisor("scream-multicast", func() (transport.Receiver, error) {
			return transport.NewMulticastReceiver(nil, e.registry, e.logger)
		}, e.logger)
		go mcastSup.Run(ctx)
	}
}

// ApplyState solves desired into a flat state, diffs it against the
// previously applied state, and reconciles the live mixer/source-path
// graph to match. Rejects the whole transaction (leaving prior state
// running) if the solve step fails.
func (e *Engine) ApplyState(ctx context.Context, desired config.DesiredState) error {
	start := time.Now()

	if err := desired.Validate(); err != nil {
		if e.metrics != nil {
			e.metrics.ConfigApplyErrors.Add(ctx, 1)
		}
		return err
	}

	next, err := config.Solve(desired)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ConfigApplyErrors.Add(ctx, 1)
		}
		return fmt.Errorf("screamrouter: solve desired state: %w", err)
	}

	plan := config.Diff(e.solved, next)
	if err := e.applier.Apply(plan); err != nil {
		if e.metrics != nil {
			e.metrics.ConfigApplyErrors.Add(ctx, 1)
		}
		return fmt.Errorf("screamrouter: apply plan: %w", err)
	}
	e.solved = next

	if e.metrics != nil {
		e.metrics.ConfigApplyDuration.Record(ctx, time.Since(start).Seconds())
		sinkDelta := len(plan.SinksToCreate) - len(plan.SinksToDestroy)
		if sinkDelta != 0 {
			e.metrics.ActiveSinks.Add(ctx, int64(sinkDelta))
		}
		pathDelta := len(plan.PathsToCreate) - len(plan.PathsToDestroy)
		if pathDelta != 0 {
			e.metrics.ActiveSourcePaths.Add(ctx, int64(pathDelta))
		}
	}
	return nil
}

// GetMP3Data returns newly encoded MP3 bytes for sinkID, up to maxBytes,
// or nil if the sink doesn't exist or has no data ready. Never blocks.
func (e *Engine) GetMP3Data(sinkID string, maxBytes int) []byte {
	if maxBytes <= 0 {
		maxBytes = 1 << 16
	}
	return e.applier.MP3Data(sinkID, maxBytes)
}

// ExportPCM returns up to lookbackSeconds of contiguous PCM history for
// sourceTag at its native format, or ok=false if the tag has no buffer
// (never subscribed by any source-path) or no data within the window.
func (e *Engine) ExportPCM(sourceTag string, lookbackSeconds float64) (pcm []byte, f format.StreamFormat, earliestAgeS, latestAgeS float64, ok bool) {
	buf, found := e.registry.Lookup(sourceTag)
	if !found {
		return nil, format.StreamFormat{}, 0, 0, false
	}
	return buf.Export(time.Now().UnixNano(), lookbackSeconds)
}

// Stats is the snapshot the control plane polls for dashboards/health.
type Stats struct {
	Sinks map[string]mixer.Stats
	Paths map[string]sourcepath.Stats
}

// GetStats gathers a non-blocking snapshot across every live sink and path.
// It never touches the mixing hot path — each object's atomics are read
// independently, so a slow consumer of Stats can't stall audio processing.
func (e *Engine) GetStats() Stats {
	out := Stats{
		Sinks: make(map[string]mixer.Stats),
		Paths: make(map[string]sourcepath.Stats),
	}
	for _, name := range e.applier.SinkNames() {
		if s, ok := e.applier.SinkStats(name); ok {
			out.Sinks[name] = s
		}
	}
	for _, id := range e.applier.PathIDs() {
		if s, ok := e.applier.PathStats(id); ok {
			out.Paths[id] = s
		}
	}
	return out
}

// Close stops every receiver and tears down all live sinks/paths.
func (e *Engine) Close() error {
	e.cancel()
	return e.applier.Apply(config.Diff(e.solved, config.SolvedState{}))
}
