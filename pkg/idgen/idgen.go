// Package idgen derives stable identifiers from configuration keys, so the
// same logical source-path or sink keeps the same ID across re-solves as
// long as its identifying fields don't change.
package idgen

import "github.com/google/uuid"

// screamrouterNamespace seeds the UUIDv5 namespace for every ID this
// package derives, so IDs are stable across process restarts.
var screamrouterNamespace = uuid.MustParse("c9b1f6d2-9a3e-4c6c-8f6b-9e6b9e6b9e6b")

// PathID derives a stable identifier for a source-path from the pair that
// actually identifies it: the sink it feeds and the source tag it carries.
// screamrouterNamespace is the salt — it only changes across a binary
// rebuild with a different namespace, never across a config re-solve — so
// the same (sinkName, sourceTag) pair always yields the same ID regardless
// of which route(s) produced it. The solver merges routes that resolve to
// the same (tag, sink) before it calls PathID, so each merged path gets
// exactly one ID.
func PathID(sinkName, sourceTag string) string {
	return uuid.NewSHA1(screamrouterNamespace, []byte(sinkName+"|"+sourceTag)).String()
}

// SinkID derives a stable identifier for a resolved sink from its name.
func SinkID(sinkName string) string {
	return uuid.NewSHA1(screamrouterNamespace, []byte("sink|"+sinkName)).String()
}
