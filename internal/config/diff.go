package config

// Plan is the set of create/destroy/update actions needed to bring a
// running engine from one SolvedState to another. Destructive actions are
// listed before constructive ones; the applier executes them in the order
// destroy paths, destroy sinks, create sinks, create paths, update in
// place, so a path is never left referencing a sink that no longer exists.
type Plan struct {
	SinksToCreate  []ResolvedSink
	SinksToUpdate  []ResolvedSink
	SinksToDestroy []string

	PathsToCreate  []ResolvedSourcePath
	PathsToUpdate  []ResolvedSourcePath
	PathsToDestroy []string
}

// Diff computes the Plan to move from prev to next. A sink or path present
// in both, structurally unchanged but with different parameters, is an
// update; one present in both and identical produces no action.
// Structurally changed (format, protocol, destination) sinks are destroyed
// and recreated rather than mutated, since those fields size buffers the
// mixer goroutine owns, and every path feeding such a sink is destroyed
// and recreated with it.
func Diff(prev, next SolvedState) Plan {
	prevSinks := make(map[string]ResolvedSink, len(prev.Sinks))
	for _, s := range prev.Sinks {
		prevSinks[s.Name] = s
	}
	nextSinks := make(map[string]ResolvedSink, len(next.Sinks))
	for _, s := range next.Sinks {
		nextSinks[s.Name] = s
	}
	prevPaths := make(map[string]ResolvedSourcePath, len(prev.Paths))
	for _, p := range prev.Paths {
		prevPaths[p.PathID] = p
	}
	nextPaths := make(map[string]ResolvedSourcePath, len(next.Paths))
	for _, p := range next.Paths {
		nextPaths[p.PathID] = p
	}

	var plan Plan
	recreatedSinks := make(map[string]bool)

	for name, oldSink := range prevSinks {
		newSink, ok := nextSinks[name]
		if !ok {
			plan.SinksToDestroy = append(plan.SinksToDestroy, name)
			continue
		}
		if sinkStructuralChange(oldSink, newSink) {
			plan.SinksToDestroy = append(plan.SinksToDestroy, name)
			plan.SinksToCreate = append(plan.SinksToCreate, newSink)
			recreatedSinks[name] = true
		} else if oldSink != newSink {
			plan.SinksToUpdate = append(plan.SinksToUpdate, newSink)
		}
	}
	for name, newSink := range nextSinks {
		if _, ok := prevSinks[name]; !ok {
			plan.SinksToCreate = append(plan.SinksToCreate, newSink)
		}
	}

	for id, oldPath := range prevPaths {
		newPath, ok := nextPaths[id]
		if !ok {
			plan.PathsToDestroy = append(plan.PathsToDestroy, id)
			continue
		}
		if pathStructuralChange(oldPath, newPath) || recreatedSinks[newPath.SinkName] {
			plan.PathsToDestroy = append(plan.PathsToDestroy, id)
			plan.PathsToCreate = append(plan.PathsToCreate, newPath)
		} else if oldPath != newPath {
			plan.PathsToUpdate = append(plan.PathsToUpdate, newPath)
		}
	}
	for id, newPath := range nextPaths {
		if _, ok := prevPaths[id]; !ok {
			plan.PathsToCreate = append(plan.PathsToCreate, newPath)
		}
	}

	return plan
}

func sinkStructuralChange(a, b ResolvedSink) bool {
	return a.Protocol != b.Protocol ||
		a.Destination != b.Destination ||
		a.SampleRate != b.SampleRate ||
		a.BitDepth != b.BitDepth ||
		a.Channels != b.Channels
}

func pathStructuralChange(a, b ResolvedSourcePath) bool {
	return a.SinkName != b.SinkName || a.Tag != b.Tag
}
