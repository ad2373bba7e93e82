package filesystem

import (
	"time"
)

// State represents the lifecycle state of a FileSystem instance.
type State uint8

const (
	// StateUninitialized indicates that the filesystem has not yet been
	// bound to a substrate root.
	StateUninitialized State = iota
	// StateReady indicates that the filesystem is bound and available
	// for operations (locked or not; lock status is tracked
	// separately in LockState).
	StateReady
	// StateError indicates that the filesystem has suffered an
	// unrecoverable failure (an invalid transition or substrate error)
	// and must be re-initialized before further use.
	StateError
)

// String returns a human-readable representation of a State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot reports a FileSystem's lifecycle and lock state together, as
// returned by GetState.
type Snapshot struct {
	// CurrentState is the filesystem's lifecycle state.
	CurrentState State
	// LockState is the filesystem's current lock state.
	LockState LockState
	// LastOperation names the most recently attempted operation, for
	// diagnostic purposes. It is empty if no operation has been
	// attempted yet.
	LastOperation string
}

// CreateDirectoryOptions configures CreateDirectory.
type CreateDirectoryOptions struct {
	// Recursive indicates that missing parent directories should be
	// created, and that an already-existing target directory should not
	// be treated as an error.
	Recursive bool
}

// DeleteOptions configures DeleteItem.
type DeleteOptions struct {
	// Recursive indicates that a non-empty directory target should have
	// its contents deleted depth-first rather than failing.
	Recursive bool
}

// FileSystem abstracts a rooted tree of files and directories over an
// arbitrary substrate (a native host filesystem, a browser-local
// persistent store, a sandboxed in-process filesystem). Every method
// that accepts an isSyncOp parameter uses it solely to pass the write
// through a sync-mode lock (see Lock.Admit); it has no other bearing on
// behavior.
//
// Implementations are not required to be safe for concurrent use by
// multiple goroutines; callers (SyncTarget, FileSyncManager) serialize
// access to a given FileSystem themselves.
type FileSystem interface {
	// ReadFile reads the full content of the file at path. It fails with
	// ErrNotFound if path does not exist and ErrInvalidType if path is a
	// directory.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes content to path, replacing any existing content.
	// The parent directory of path must already exist (fails
	// ErrNotFound otherwise). It fails with ErrLocked if the filesystem
	// is locked in a mode that rejects this write (see Lock.Admit).
	WriteFile(path string, content []byte, isSyncOp bool) error

	// Exists reports whether path refers to an existing file or
	// directory.
	Exists(path string) (bool, error)

	// CreateDirectory creates a directory at path. With
	// options.Recursive false, it fails with ErrAlreadyExists if path
	// already exists and ErrNotFound if path's parent is missing. With
	// options.Recursive true, it silently succeeds if path already
	// exists as a directory and creates any missing parents.
	CreateDirectory(path string, options CreateDirectoryOptions, isSyncOp bool) error

	// DeleteItem deletes the file or directory at path. It fails with
	// ErrNotFound if path does not exist. For a non-empty directory with
	// options.Recursive false, it fails with ErrInvalidOperation.
	// Recursive deletes descend depth-first.
	DeleteItem(path string, options DeleteOptions, isSyncOp bool) error

	// ListDirectory lists the immediate children of the directory at
	// path, ordered lexicographically by basename. It fails with
	// ErrNotFound if path does not exist and ErrInvalidType if path is a
	// file.
	ListDirectory(path string) ([]Item, error)

	// GetMetadata returns the metadata for the entry at path, including
	// a content hash computed over the file's byte content (empty for
	// directories). It fails with ErrNotFound if path does not exist.
	GetMetadata(path string) (Metadata, error)

	// GetFileContent returns a streaming reader over the content of the
	// file at path. It fails with ErrNotFound if path does not exist and
	// ErrInvalidType if path is a directory. The returned stream must be
	// closed by the caller.
	GetFileContent(path string) (*ContentStream, error)

	// Lock acquires an exclusive lock on the filesystem with the given
	// auto-release timeout, reason, and mode. It fails with ErrLocked if
	// already locked.
	Lock(timeout time.Duration, reason string, mode LockMode) error

	// ForceUnlock releases the filesystem's lock unconditionally. It is
	// idempotent.
	ForceUnlock()

	// GetState returns a snapshot of the filesystem's lifecycle and lock
	// state.
	GetState() Snapshot
}
