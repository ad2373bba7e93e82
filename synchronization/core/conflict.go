package core

import "time"

// FileConflict records that a destination's content was found to be
// newer than an incoming change at apply time, per spec.md §4.3
// applyFileChange. It is returned rather than treated as an error: a
// conflict is an expected outcome of last-modified comparison, not a
// failure of the apply machinery itself.
type FileConflict struct {
	// Path is the root-relative, normalized path in conflict.
	Path string
	// SourceTargetID identifies the target whose change was rejected.
	SourceTargetID string
	// TargetID identifies the destination target that rejected the
	// change because its own content was newer.
	TargetID string
	// Timestamp is the time the conflict was detected.
	Timestamp time.Time
}
