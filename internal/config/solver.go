package config

import (
	"fmt"

	"github.com/screamrouter/screamrouter/internal/audio/eq"
	"github.com/screamrouter/screamrouter/internal/audio/remap"
	"github.com/screamrouter/screamrouter/pkg/idgen"
)

// resolvedMember is one non-group source or sink reached while expanding a
// group, carrying the accumulated gain/EQ/delay/timeshift of every group it
// was reached through.
type resolvedMember struct {
	name         string
	tag          string // only meaningful for sources
	volume       float64
	equalizer    eq.Equalizer
	delayMS      float64
	timeshiftSec float64
}

// candidatePath is one (route, resolved source, resolved sink) triple
// before the dedup-by-(tag,sink) merge pass collapses route overlap.
type candidatePath struct {
	sinkName     string
	tag          string
	volume       float64
	equalizer    eq.Equalizer
	delayMS      float64
	timeshiftSec float64
	autoMode     bool
	userMatrix   remap.Matrix
}

// Solve flattens a DesiredState into a SolvedState: every enabled route is
// expanded through its source and sink groups down to real (non-group)
// endpoints, composing volume multiplicatively, equalizer multiplicatively,
// and delay/timeshift additively at each level, matching the semantics a
// user expects from nesting gain stages. Disabled routes, sources, and
// sinks are dropped entirely, as are sinks left with no resolved paths.
// Candidate paths that land on the same (source_tag, sink) pair — two
// routes overlapping on the same edge — are merged by summing their gains,
// capped at 1.0, so route overlap is well-defined instead of producing two
// competing paths.
func Solve(state DesiredState) (SolvedState, error) {
	sourcesByName := make(map[string]Source, len(state.Sources))
	for _, s := range state.Sources {
		sourcesByName[s.Name] = s
	}
	sinksByName := make(map[string]Sink, len(state.Sinks))
	for _, s := range state.Sinks {
		sinksByName[s.Name] = s
	}

	var candidates []candidatePath
	var sinkOrder []string
	sinkHasPath := make(map[string]bool)
	resolvedSinks := make(map[string]ResolvedSink)

	for _, route := range state.Routes {
		if !route.Enabled {
			continue
		}
		source, ok := sourcesByName[route.Source]
		if !ok {
			return SolvedState{}, fmt.Errorf("screamrouter: route %q references unknown source %q", route.Name, route.Source)
		}
		sink, ok := sinksByName[route.Sink]
		if !ok {
			return SolvedState{}, fmt.Errorf("screamrouter: route %q references unknown sink %q", route.Name, route.Sink)
		}

		members, err := expandSource(sourcesByName, source, route.Volume, route.Equalizer, route.DelayMS, route.TimeshiftSec, nil)
		if err != nil {
			return SolvedState{}, fmt.Errorf("route %q: %w", route.Name, err)
		}
		realSinks, err := expandSink(sinksByName, sink, 1.0, eq.Unity(), 0, 0, nil)
		if err != nil {
			return SolvedState{}, fmt.Errorf("route %q: %w", route.Name, err)
		}

		for _, rs := range realSinks {
			if !rs.resolvedSink.Enabled {
				continue
			}
			for _, member := range members {
				if member.tag == "" {
					continue // source is disabled or has no tag; nothing to carry
				}
				candidates = append(candidates, candidatePath{
					sinkName:     rs.resolvedSink.Name,
					tag:          member.tag,
					volume:       member.volume * rs.volume,
					equalizer:    member.equalizer.Mul(rs.equalizer),
					delayMS:      member.delayMS + rs.delayMS,
					timeshiftSec: member.timeshiftSec + rs.timeshiftSec,
					autoMode:     route.AutoMode,
					userMatrix:   route.UserMatrix,
				})
				if !sinkHasPath[rs.resolvedSink.Name] {
					sinkOrder = append(sinkOrder, rs.resolvedSink.Name)
				}
				sinkHasPath[rs.resolvedSink.Name] = true
				resolvedSinks[rs.resolvedSink.Name] = toResolvedSink(rs.resolvedSink, rs.volume, rs.equalizer, rs.delayMS)
			}
		}
	}

	paths := mergeByTagAndSink(candidates)

	out := SolvedState{Paths: paths}
	for _, name := range sinkOrder {
		out.Sinks = append(out.Sinks, resolvedSinks[name])
	}
	return out, nil
}

// mergeByTagAndSink deduplicates candidates sharing a (tag, sinkName) key,
// summing their volume (capped at 1.0) and keeping the first candidate's
// other parameters — order of first appearance is preserved so Solve stays
// a pure, order-stable function of its input.
func mergeByTagAndSink(candidates []candidatePath) []ResolvedSourcePath {
	merged := make(map[string]*candidatePath, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		key := c.tag + "\x00" + c.sinkName
		if existing, ok := merged[key]; ok {
			existing.volume += c.volume
			if existing.volume > 1.0 {
				existing.volume = 1.0
			}
			continue
		}
		cc := c
		merged[key] = &cc
		order = append(order, key)
	}

	paths := make([]ResolvedSourcePath, 0, len(order))
	for _, key := range order {
		c := merged[key]
		paths = append(paths, ResolvedSourcePath{
			PathID:       idgen.PathID(c.sinkName, c.tag),
			SinkName:     c.sinkName,
			Tag:          c.tag,
			Volume:       c.volume,
			Equalizer:    c.equalizer,
			DelayMS:      c.delayMS,
			TimeshiftSec: c.timeshiftSec,
			AutoMode:     c.autoMode,
			UserMatrix:   c.userMatrix,
		})
	}
	return paths
}

type sinkMember struct {
	resolvedSink Sink
	volume       float64
	equalizer    eq.Equalizer
	delayMS      float64
	timeshiftSec float64
}

// expandSource recursively resolves source through its group membership,
// composing gain/EQ/delay/timeshift adjustments at each level. visiting
// guards against a group cycle, which is otherwise a user-configuration
// error.
func expandSource(all map[string]Source, source Source, volumeAdj float64, eqAdj eq.Equalizer, delayAdj, timeshiftAdj float64, visiting map[string]bool) ([]resolvedMember, error) {
	if !source.Enabled {
		return nil, nil
	}
	adjVolume := volumeAdj * source.Volume
	adjEQ := eqAdj.Mul(source.Equalizer)
	adjDelay := delayAdj + source.DelayMS
	adjTimeshift := timeshiftAdj + source.TimeshiftSec

	if !source.IsGroup {
		return []resolvedMember{{
			name:         source.Name,
			tag:          source.Tag,
			volume:       adjVolume,
			equalizer:    adjEQ,
			delayMS:      adjDelay,
			timeshiftSec: adjTimeshift,
		}}, nil
	}

	if visiting == nil {
		visiting = make(map[string]bool)
	}
	if visiting[source.Name] {
		return nil, fmt.Errorf("source group cycle detected at %q", source.Name)
	}
	visiting[source.Name] = true

	var out []resolvedMember
	for _, memberName := range source.GroupMembers {
		member, ok := all[memberName]
		if !ok {
			return nil, fmt.Errorf("source group %q references unknown member %q", source.Name, memberName)
		}
		resolved, err := expandSource(all, member, adjVolume, adjEQ, adjDelay, adjTimeshift, visiting)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

// expandSink recursively resolves sink through its group membership the
// same way expandSource does for sources.
func expandSink(all map[string]Sink, sink Sink, volumeAdj float64, eqAdj eq.Equalizer, delayAdj, timeshiftAdj float64, visiting map[string]bool) ([]sinkMember, error) {
	if !sink.Enabled {
		return nil, nil
	}
	adjVolume := volumeAdj * sink.Volume
	adjEQ := eqAdj.Mul(sink.Equalizer)
	adjDelay := delayAdj + sink.DelayMS
	adjTimeshift := timeshiftAdj + sink.TimeshiftSec

	if !sink.IsGroup {
		return []sinkMember{{resolvedSink: sink, volume: adjVolume, equalizer: adjEQ, delayMS: adjDelay, timeshiftSec: adjTimeshift}}, nil
	}

	if visiting == nil {
		visiting = make(map[string]bool)
	}
	if visiting[sink.Name] {
		return nil, fmt.Errorf("sink group cycle detected at %q", sink.Name)
	}
	visiting[sink.Name] = true

	var out []sinkMember
	for _, memberName := range sink.GroupMembers {
		member, ok := all[memberName]
		if !ok {
			return nil, fmt.Errorf("sink group %q references unknown member %q", sink.Name, memberName)
		}
		resolved, err := expandSink(all, member, adjVolume, adjEQ, adjDelay, adjTimeshift, visiting)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

func toResolvedSink(s Sink, volume float64, equalizer eq.Equalizer, delayMS float64) ResolvedSink {
	return ResolvedSink{
		Name:             s.Name,
		Protocol:         s.Protocol,
		Destination:      s.Destination,
		SampleRate:       s.SampleRate,
		BitDepth:         s.BitDepth,
		Channels:         s.Channels,
		TimeSyncOffsetMS: s.TimeSyncOffsetMS,
		Volume:           volume,
		Equalizer:        equalizer,
		DelayMS:          delayMS,
	}
}
