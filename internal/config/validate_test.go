package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screamrouter/screamrouter/internal/audio"
	"github.com/screamrouter/screamrouter/internal/audio/eq"
)

func TestDesiredStateValidateAcceptsWellFormedGraph(t *testing.T) {
	state := DesiredState{
		Sources: []Source{simpleSource("mic", "tag:mic", 1.0)},
		Sinks:   []Sink{simpleSink("living-room", 1.0)},
		Routes: []Route{
			{Name: "r1", Source: "mic", Sink: "living-room", Enabled: true, Volume: 1.0, Equalizer: eq.Unity(), AutoMode: true},
		},
	}
	assert.NoError(t, state.Validate())
}

func TestDesiredStateValidateRejectsZeroChannelSink(t *testing.T) {
	sink := simpleSink("living-room", 1.0)
	sink.Channels = 0
	state := DesiredState{Sinks: []Sink{sink}}

	err := state.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrConfigRejected))
}

func TestDesiredStateValidateRejectsBadBitDepth(t *testing.T) {
	sink := simpleSink("living-room", 1.0)
	sink.BitDepth = 20
	state := DesiredState{Sinks: []Sink{sink}}

	err := state.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrConfigRejected))
}

func TestDesiredStateValidateRejectsPositiveTimeshift(t *testing.T) {
	state := DesiredState{
		Sources: []Source{simpleSource("mic", "tag:mic", 1.0)},
		Sinks:   []Sink{simpleSink("living-room", 1.0)},
		Routes: []Route{
			{Name: "r1", Source: "mic", Sink: "living-room", Enabled: true, Volume: 1.0, Equalizer: eq.Unity(), TimeshiftSec: 2.0},
		},
	}

	err := state.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrConfigRejected))
}

func TestDesiredStateValidateRejectsOutOfRangeVolume(t *testing.T) {
	source := simpleSource("mic", "tag:mic", 1.0)
	source.Volume = 10.0
	state := DesiredState{Sources: []Source{source}}

	err := state.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audio.ErrConfigRejected))
}
