package remap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityPassesThrough(t *testing.T) {
	m := Identity()
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := make([]float32, 4)
	m.Apply(in, 4, 4, out)
	assert.Equal(t, in, out)
}

func TestAutoMonoToStereoBroadcasts(t *testing.T) {
	m := Auto(1, 2)
	in := []float32{0.5}
	out := make([]float32, 2)
	m.Apply(in, 1, 2, out)
	assert.Equal(t, float32(0.5), out[0])
	assert.Equal(t, float32(0.5), out[1])
}

func TestAutoStereoToMonoAverages(t *testing.T) {
	m := Auto(2, 1)
	in := []float32{1.0, 0.0}
	out := make([]float32, 1)
	m.Apply(in, 2, 1, out)
	assert.InDelta(t, 0.5, out[0], 1e-6)
}

func TestAutoSurroundToStereoDownmixKeepsFrontChannels(t *testing.T) {
	m := Auto(6, 2)
	in := []float32{1, 0, 0, 0, 0, 0}
	out := make([]float32, 2)
	m.Apply(in, 6, 2, out)
	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.InDelta(t, 0.0, out[1], 1e-6)
}

func TestAutoStereoToSurroundLeavesRearSilent(t *testing.T) {
	m := Auto(2, 6)
	in := []float32{1, 1}
	out := make([]float32, 6)
	m.Apply(in, 2, 6, out)
	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.InDelta(t, 1.0, out[1], 1e-6)
	assert.InDelta(t, 0.0, out[4], 1e-6)
}
