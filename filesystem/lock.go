package filesystem

import (
	"fmt"
	"sync"
	"time"
)

// LockMode distinguishes who is allowed to write while a FileSystem is
// locked. A sync lock admits writes explicitly marked as sync
// operations (i.e. driven by the FileSyncManager itself); an external
// lock blocks all writers, sync-marked or not.
type LockMode uint8

const (
	// LockModeSync indicates a lock acquired to protect an in-flight
	// manager-driven sync cycle. Writes marked isSyncOp pass.
	LockModeSync LockMode = iota
	// LockModeExternal indicates a lock acquired on behalf of a
	// user-facing caller. No writes pass, sync-marked or not.
	LockModeExternal
)

// String returns a human-readable representation of a LockMode.
func (m LockMode) String() string {
	switch m {
	case LockModeSync:
		return "sync"
	case LockModeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// LockState is a snapshot of a FileSystem's lock status.
type LockState struct {
	// Locked indicates whether or not the filesystem is currently
	// locked.
	Locked bool
	// AcquiredAt is the time at which the current lock (if any) was
	// acquired.
	AcquiredAt time.Time
	// TimeoutMillis is the auto-release timeout that was specified when
	// the lock was acquired.
	TimeoutMillis int64
	// Reason is the caller-supplied reason for acquiring the lock.
	Reason string
	// Mode is the lock's mode.
	Mode LockMode
}

// Lock is a reusable, in-process exclusive lock with mode-aware write
// admission and an auto-release timeout. It is not re-entrant: a second
// Acquire while locked always fails with ErrLocked, matching the "lock
// is re-entrancy-free" requirement. Adapters embed a *Lock and consult
// Admit before performing a write.
//
// Lock only coordinates callers within a single process holding a
// reference to the same FileSystem instance; it has no bearing on
// other processes touching the same backing substrate.
type Lock struct {
	mu    sync.Mutex
	state LockState
	timer *time.Timer
}

// NewLock creates a new, initially-unlocked Lock.
func NewLock() *Lock {
	return &Lock{}
}

// Acquire attempts to acquire the lock in the specified mode, with the
// specified reason and auto-release timeout. It fails with ErrLocked if
// the lock is already held.
func (l *Lock) Acquire(timeout time.Duration, reason string, mode LockMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Locked {
		return fmt.Errorf("acquire lock: %w", ErrLocked)
	}

	l.state = LockState{
		Locked:        true,
		AcquiredAt:    time.Now(),
		TimeoutMillis: timeout.Milliseconds(),
		Reason:        reason,
		Mode:          mode,
	}
	l.timer = time.AfterFunc(timeout, l.releaseOnTimeout)

	return nil
}

// releaseOnTimeout is invoked by the auto-release timer. It silently
// releases the lock; a stuck sync is considered worse than a transient
// write race, per the engine's locking discipline.
func (l *Lock) releaseOnTimeout() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlockLocked()
}

// Release releases the lock. It is idempotent: releasing an already
// unlocked Lock is a no-op.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlockLocked()
}

// ForceUnlock is an alias for Release, named to match the capability
// contract's forceUnlock operation, which is explicitly idempotent.
func (l *Lock) ForceUnlock() {
	l.Release()
}

// unlockLocked clears lock state. The caller must hold l.mu.
func (l *Lock) unlockLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.state = LockState{}
}

// Admit determines whether a write marked isSyncOp should be admitted
// given the current lock state. An unlocked Lock admits everything.
func (l *Lock) Admit(isSyncOp bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.Locked {
		return nil
	}
	if l.state.Mode == LockModeSync && isSyncOp {
		return nil
	}
	return fmt.Errorf("write rejected: %w", ErrLocked)
}

// State returns a snapshot of the current lock state.
func (l *Lock) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
