package filesystem

import "errors"

// Sentinel errors for FileSystem operations. Adapters should wrap these
// with fmt.Errorf("...: %w", ErrX) so that callers can test with
// errors.Is while still getting a descriptive message.
var (
	// ErrNotFound indicates that the requested path does not exist.
	ErrNotFound = errors.New("NOT_FOUND")
	// ErrAlreadyExists indicates that a path already exists where the
	// operation requires it to be absent.
	ErrAlreadyExists = errors.New("ALREADY_EXISTS")
	// ErrInvalidOperation indicates that the operation is not valid given
	// the current state of the filesystem or target path (e.g. deleting
	// a non-empty directory without the recursive flag).
	ErrInvalidOperation = errors.New("INVALID_OPERATION")
	// ErrInvalidType indicates that an operation was attempted against a
	// path of the wrong kind (e.g. reading a directory as a file).
	ErrInvalidType = errors.New("INVALID_TYPE")
	// ErrPermissionDenied indicates that the underlying substrate refused
	// the operation for permission reasons.
	ErrPermissionDenied = errors.New("PERMISSION_DENIED")
	// ErrLocked indicates that the filesystem is locked in a mode that
	// rejects the attempted write.
	ErrLocked = errors.New("LOCKED")
)
