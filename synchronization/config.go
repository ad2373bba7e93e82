package synchronization

import "time"

// ManagerConfig configures a FileSyncManager. Zero-value fields are
// replaced with their documented defaults by NewManager.
type ManagerConfig struct {
	// MaxBatchSize bounds how many changes are sent to a destination's
	// applyFileChange calls per batch, per spec.md §4.4
	// applyChangesToTarget. Default 10.
	MaxBatchSize int
	// LockTimeout is the default auto-release timeout passed to
	// notifyIncomingChanges. Default 30 seconds.
	LockTimeout time.Duration
}

const (
	// DefaultMaxBatchSize is applied when ManagerConfig.MaxBatchSize is
	// zero.
	DefaultMaxBatchSize = 10
	// DefaultLockTimeout is applied when ManagerConfig.LockTimeout is
	// zero.
	DefaultLockTimeout = defaultLockTimeout
)

// withDefaults returns a copy of c with zero fields replaced by their
// defaults.
func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	return c
}
