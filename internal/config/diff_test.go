package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/screamrouter/screamrouter/internal/audio/eq"
)

func resolvedSink(name string, channels int) ResolvedSink {
	return ResolvedSink{Name: name, Protocol: ProtocolScream, SampleRate: 48000, BitDepth: 16, Channels: channels, Equalizer: eq.Unity(), Volume: 1.0}
}

func TestDiffCreatesNewSinksAndPaths(t *testing.T) {
	next := SolvedState{
		Sinks: []ResolvedSink{resolvedSink("s1", 2)},
		Paths: []ResolvedSourcePath{{PathID: "p1", SinkName: "s1", Tag: "tag:a", Equalizer: eq.Unity(), Volume: 1.0}},
	}
	plan := Diff(SolvedState{}, next)
	assert.Len(t, plan.SinksToCreate, 1)
	assert.Len(t, plan.PathsToCreate, 1)
	assert.Empty(t, plan.SinksToDestroy)
	assert.Empty(t, plan.PathsToDestroy)
}

func TestDiffDestroysRemovedSinksAndPaths(t *testing.T) {
	prev := SolvedState{
		Sinks: []ResolvedSink{resolvedSink("s1", 2)},
		Paths: []ResolvedSourcePath{{PathID: "p1", SinkName: "s1", Tag: "tag:a", Equalizer: eq.Unity(), Volume: 1.0}},
	}
	plan := Diff(prev, SolvedState{})
	assert.Equal(t, []string{"s1"}, plan.SinksToDestroy)
	assert.Equal(t, []string{"p1"}, plan.PathsToDestroy)
}

func TestDiffUpdatesInPlaceOnParameterChangeOnly(t *testing.T) {
	prev := SolvedState{Sinks: []ResolvedSink{resolvedSink("s1", 2)}}
	next := prev
	next.Sinks = []ResolvedSink{resolvedSink("s1", 2)}
	next.Sinks[0].Volume = 0.5

	plan := Diff(prev, next)
	assert.Len(t, plan.SinksToUpdate, 1)
	assert.Empty(t, plan.SinksToCreate)
	assert.Empty(t, plan.SinksToDestroy)
}

func TestDiffRecreatesOnStructuralChange(t *testing.T) {
	prev := SolvedState{Sinks: []ResolvedSink{resolvedSink("s1", 2)}}
	next := SolvedState{Sinks: []ResolvedSink{resolvedSink("s1", 6)}}

	plan := Diff(prev, next)
	assert.Equal(t, []string{"s1"}, plan.SinksToDestroy)
	assert.Len(t, plan.SinksToCreate, 1)
	assert.Equal(t, 6, plan.SinksToCreate[0].Channels)
}

func TestDiffNoChangeProducesEmptyPlan(t *testing.T) {
	state := SolvedState{
		Sinks: []ResolvedSink{resolvedSink("s1", 2)},
		Paths: []ResolvedSourcePath{{PathID: "p1", SinkName: "s1", Tag: "tag:a", Equalizer: eq.Unity(), Volume: 1.0}},
	}
	plan := Diff(state, state)
	assert.Empty(t, plan.SinksToCreate)
	assert.Empty(t, plan.SinksToDestroy)
	assert.Empty(t, plan.SinksToUpdate)
	assert.Empty(t, plan.PathsToCreate)
	assert.Empty(t, plan.PathsToDestroy)
	assert.Empty(t, plan.PathsToUpdate)
}
