// Package config holds the control-plane data model (sources, sinks,
// routes, and groups of each), the pure solver that flattens a desired
// graph into flat source-path/sink records, and the diff-and-apply driver
// that reconciles a running engine to a newly solved state.
package config

import (
	"github.com/screamrouter/screamrouter/internal/audio/eq"
	"github.com/screamrouter/screamrouter/internal/audio/remap"
)

// Protocol names the wire format a sink or source speaks.
type Protocol string

const (
	ProtocolScream           Protocol = "scream"
	ProtocolScreamMulticast  Protocol = "scream_multicast"
	ProtocolScreamPerProcess Protocol = "scream_per_process"
	ProtocolRTP              Protocol = "rtp"
)

// Source is a user-facing source entry: either a real network source
// (Tag identifies its incoming packets) or a group of other sources
// (GroupMembers names its children, recursively).
type Source struct {
	Name         string   `mapstructure:"name" validate:"required"`
	Tag          string   `mapstructure:"tag"`
	IsGroup      bool     `mapstructure:"is_group"`
	GroupMembers []string `mapstructure:"group_members"`
	Enabled      bool     `mapstructure:"enabled"`

	Volume       float64      `mapstructure:"volume" validate:"gte=0,lte=4"`
	Equalizer    eq.Equalizer `mapstructure:"equalizer"`
	DelayMS      float64      `mapstructure:"delay_ms" validate:"gte=0"`
	TimeshiftSec float64      `mapstructure:"timeshift_sec" validate:"lte=0,gte=-300"`
}

// Sink is a user-facing sink entry: either a real network destination or a
// group of other sinks.
type Sink struct {
	Name         string   `mapstructure:"name" validate:"required"`
	IsGroup      bool     `mapstructure:"is_group"`
	GroupMembers []string `mapstructure:"group_members"`
	Enabled      bool     `mapstructure:"enabled"`

	Protocol         Protocol `mapstructure:"protocol"`
	Destination      string   `mapstructure:"destination"`
	SampleRate       int      `mapstructure:"sample_rate" validate:"required"`
	BitDepth         int      `mapstructure:"bit_depth" validate:"oneof=16 24 32"`
	Channels         int      `mapstructure:"channels" validate:"gte=1,lte=8"`
	TimeSyncOffsetMS float64  `mapstructure:"time_sync_offset_ms"`

	Volume       float64      `mapstructure:"volume" validate:"gte=0,lte=4"`
	Equalizer    eq.Equalizer `mapstructure:"equalizer"`
	DelayMS      float64      `mapstructure:"delay_ms" validate:"gte=0"`
	TimeshiftSec float64      `mapstructure:"timeshift_sec" validate:"lte=0,gte=-300"`
}

// Route binds one source to one sink with its own gain/EQ/delay stage
// composed multiplicatively/additively with both endpoints'.
type Route struct {
	Name         string       `mapstructure:"name" validate:"required"`
	Source       string       `mapstructure:"source" validate:"required"`
	Sink         string       `mapstructure:"sink" validate:"required"`
	Enabled      bool         `mapstructure:"enabled"`
	Volume       float64      `mapstructure:"volume" validate:"gte=0,lte=4"`
	Equalizer    eq.Equalizer `mapstructure:"equalizer"`
	DelayMS      float64      `mapstructure:"delay_ms" validate:"gte=0"`
	// TimeshiftSec: 0 means live, negative reads from the past; positive is
	// rejected by Validate (the solver never sees an out-of-range value).
	TimeshiftSec float64 `mapstructure:"timeshift_sec" validate:"lte=0,gte=-300"`

	AutoMode   bool         `mapstructure:"auto_mode"`
	UserMatrix remap.Matrix `mapstructure:"user_matrix"`
}

// DesiredState is the full user-authored configuration graph, as would be
// read from a config file or pushed by the control API.
type DesiredState struct {
	Sources []Source `mapstructure:"sources"`
	Sinks   []Sink   `mapstructure:"sinks"`
	Routes  []Route  `mapstructure:"routes"`
}

// ResolvedSourcePath is one flattened source->sink edge after group
// expansion and gain/EQ/delay composition — the unit the audio plane
// actually instantiates as a sourcepath.Path.
type ResolvedSourcePath struct {
	PathID   string
	SinkName string
	Tag      string

	Volume       float64
	Equalizer    eq.Equalizer
	DelayMS      float64
	TimeshiftSec float64
	AutoMode     bool
	UserMatrix   remap.Matrix
}

// ResolvedSink is one flattened, enabled, non-group sink.
type ResolvedSink struct {
	Name             string
	Protocol         Protocol
	Destination      string
	SampleRate       int
	BitDepth         int
	Channels         int
	TimeSyncOffsetMS float64
	Volume           float64
	Equalizer        eq.Equalizer
	DelayMS          float64
}

// SolvedState is the flat result of running Solve over a DesiredState:
// every enabled sink that has at least one resolved path, and every
// resolved path feeding it.
type SolvedState struct {
	Sinks []ResolvedSink
	Paths []ResolvedSourcePath
}
