package core

import "fmt"

// TargetStatus represents the lifecycle state of a single SyncTarget,
// per spec.md §3. Valid transitions: uninitialized -> idle; idle ->
// collecting -> syncing -> idle; any non-uninitialized state -> error;
// error -> idle (only via re-initialize).
type TargetStatus uint8

const (
	// TargetStatusUninitialized indicates the target has not yet been
	// bound to a FileSystem.
	TargetStatusUninitialized TargetStatus = iota
	// TargetStatusIdle indicates the target is bound and not currently
	// processing a change cycle.
	TargetStatusIdle
	// TargetStatusCollecting indicates the target's change detector has
	// acquired the sync lock and is computing the current batch.
	TargetStatusCollecting
	// TargetStatusSyncing indicates the target is applying or
	// propagating a change batch.
	TargetStatusSyncing
	// TargetStatusError indicates the target has suffered an
	// unrecoverable failure and requires re-initialization.
	TargetStatusError
)

// String returns a human-readable representation of a TargetStatus.
func (s TargetStatus) String() string {
	switch s {
	case TargetStatusUninitialized:
		return "uninitialized"
	case TargetStatusIdle:
		return "idle"
	case TargetStatusCollecting:
		return "collecting"
	case TargetStatusSyncing:
		return "syncing"
	case TargetStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether a transition from s to next is valid
// per the state machine in spec.md §3.
func (s TargetStatus) CanTransitionTo(next TargetStatus) bool {
	switch s {
	case TargetStatusUninitialized:
		return next == TargetStatusIdle || next == TargetStatusError
	case TargetStatusIdle:
		return next == TargetStatusCollecting || next == TargetStatusError
	case TargetStatusCollecting:
		return next == TargetStatusSyncing || next == TargetStatusIdle || next == TargetStatusError
	case TargetStatusSyncing:
		return next == TargetStatusIdle || next == TargetStatusError
	case TargetStatusError:
		return next == TargetStatusIdle
	default:
		return false
	}
}

// ManagerState represents the lifecycle state of a FileSyncManager, per
// spec.md §3.
type ManagerState uint8

const (
	// ManagerStateUninitialized indicates the manager has not completed
	// Initialize.
	ManagerStateUninitialized ManagerState = iota
	// ManagerStateReady indicates the manager is idle and able to accept
	// change notifications.
	ManagerStateReady
	// ManagerStateSyncing indicates the manager is actively propagating
	// a change batch.
	ManagerStateSyncing
	// ManagerStateConflict indicates the primary rejected a
	// secondary-origin change and an operator decision is pending.
	ManagerStateConflict
	// ManagerStateError indicates the manager has suffered an
	// unrecoverable failure and requires re-initialization.
	ManagerStateError
)

// String returns a human-readable representation of a ManagerState.
func (s ManagerState) String() string {
	switch s {
	case ManagerStateUninitialized:
		return "uninitialized"
	case ManagerStateReady:
		return "ready"
	case ManagerStateSyncing:
		return "syncing"
	case ManagerStateConflict:
		return "conflict"
	case ManagerStateError:
		return "error"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether a transition from s to next is valid
// per the state machine in spec.md §3.
func (s ManagerState) CanTransitionTo(next ManagerState) bool {
	switch s {
	case ManagerStateUninitialized:
		return next == ManagerStateReady
	case ManagerStateReady:
		return next == ManagerStateSyncing || next == ManagerStateError
	case ManagerStateSyncing:
		return next == ManagerStateReady || next == ManagerStateConflict || next == ManagerStateError
	case ManagerStateConflict:
		return next == ManagerStateReady || next == ManagerStateError
	case ManagerStateError:
		return next == ManagerStateReady
	default:
		return false
	}
}

// InvalidTransitionError is returned when a component attempts a
// transition its state machine does not allow.
type InvalidTransitionError struct {
	// Component names the state machine (e.g. "target", "manager").
	Component string
	// From is the state transitioned from.
	From fmt.Stringer
	// To is the attempted destination state.
	To fmt.Stringer
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Component, e.From, e.To)
}
