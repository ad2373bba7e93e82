package core

import "errors"

// Sentinel errors for target and manager operations, per spec.md §6.
var (
	// ErrTargetNotFound indicates an operation referenced an unknown
	// target id.
	ErrTargetNotFound = errors.New("TARGET_NOT_FOUND")
	// ErrTargetAlreadyExists indicates registration used an id that is
	// already registered.
	ErrTargetAlreadyExists = errors.New("TARGET_ALREADY_EXISTS")
	// ErrPrimaryTargetExists indicates an attempt to register a second
	// primary target.
	ErrPrimaryTargetExists = errors.New("PRIMARY_TARGET_EXISTS")
	// ErrNoPrimaryTarget indicates an operation required a primary
	// target that has not been registered.
	ErrNoPrimaryTarget = errors.New("NO_PRIMARY_TARGET")
	// ErrSourceNotAvailable indicates the originating target of a
	// pending change is no longer available to supply content.
	ErrSourceNotAvailable = errors.New("SOURCE_NOT_AVAILABLE")
	// ErrNoPendingSync indicates a conflict-resolution operation was
	// invoked with no PendingSync retained.
	ErrNoPendingSync = errors.New("NO_PENDING_SYNC")
	// ErrSyncInProgress indicates an operation was rejected because a
	// sync cycle is already underway.
	ErrSyncInProgress = errors.New("SYNC_IN_PROGRESS")
	// ErrInitializationFailed indicates Initialize could not bring every
	// registered target to a non-error state.
	ErrInitializationFailed = errors.New("INITIALIZATION_FAILED")
	// ErrApplyFailed indicates applyFileChange or a batch application
	// failed against a destination.
	ErrApplyFailed = errors.New("APPLY_FAILED")
	// ErrWatchFailed indicates a target's change detector could not be
	// started.
	ErrWatchFailed = errors.New("WATCH_FAILED")
)
