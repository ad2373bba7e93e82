// Package core holds the shared data types that flow between SyncTarget
// and FileSyncManager: changes, conflicts, pending-sync state, and the
// manager/target lifecycle state machines. It has no dependency on any
// particular FileSystem substrate.
package core

import "github.com/mrsimpson/piddie-sub002/filesystem"

// ChangeType classifies a single filesystem change.
type ChangeType uint8

const (
	// ChangeCreate indicates a new file or directory.
	ChangeCreate ChangeType = iota
	// ChangeModify indicates an existing file's content changed.
	ChangeModify
	// ChangeDelete indicates a file or directory was removed.
	ChangeDelete
)

// String returns a human-readable representation of a ChangeType.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileChangeInfo describes a single detected or propagated change. For
// ChangeDelete, Metadata has an empty ContentHash and zero SizeBytes.
type FileChangeInfo struct {
	// Path is the root-relative, normalized path of the changed entry.
	Path string
	// ChangeType classifies the change.
	ChangeType ChangeType
	// Metadata is the entry's metadata after the change (for delete,
	// only Path and Kind are meaningful).
	Metadata filesystem.Metadata
	// SourceTargetID identifies the target on which the change was
	// originally detected or synthesized.
	SourceTargetID string
}
