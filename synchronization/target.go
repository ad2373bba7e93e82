// Package synchronization implements the replicated-state coordination
// layer described in spec.md: SyncTarget wraps a single FileSystem with
// identity, role, lifecycle, and change detection; FileSyncManager owns
// one primary and N secondary targets and drives fan-out, bootstrap, and
// conflict resolution between them.
package synchronization

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/ignore"
	"github.com/mrsimpson/piddie-sub002/internal/logging"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

// defaultLockTimeout is the auto-release timeout used by
// NotifyIncomingChanges and ApplyFileChange's implicit lock
// acquisition, per spec.md §4.3 and §5.
const defaultLockTimeout = 30 * time.Second

// ChangeCallback is invoked by a SyncTarget's change detector with a
// batch of locally-detected changes. Implementations should not block
// for long periods, since the target's sync lock is held for the
// duration of the call.
type ChangeCallback func(targetID string, changes []core.FileChangeInfo)

// TargetState is a point-in-time snapshot of a SyncTarget, as returned
// by GetState.
type TargetState struct {
	// ID is the target's identifier.
	ID string
	// Role is the target's role.
	Role Role
	// Status is the target's lifecycle status.
	Status core.TargetStatus
	// Watching indicates whether the change detector is currently
	// running.
	Watching bool
}

// SyncTarget wraps a FileSystem with identity, role, lifecycle state,
// and a debounced change detector, per spec.md §4.3.
type SyncTarget struct {
	id                    string
	declaredSubstrateKind string
	role                  Role
	logger                *logging.Logger
	lockTimeout           time.Duration

	mu                 sync.Mutex
	fs                 filesystem.FileSystem
	status             core.TargetStatus
	baseline           snapshot
	overlay            *originOverlay
	ignorer            *ignoreMatcher
	initialSyncPending bool
	detector           *changeDetector
}

// NewTarget creates a SyncTarget with the given id and role.
// declaredSubstrateKind, if non-empty, must match the SubstrateKind()
// of any FileSystem later passed to Initialize (when the FileSystem
// reports one at all); pass "" to skip that check. matcher may be nil,
// in which case nothing is treated as ignored.
func NewTarget(id string, role Role, declaredSubstrateKind string, matcher *ignore.Matcher, logger *logging.Logger) *SyncTarget {
	return &SyncTarget{
		id:                    id,
		declaredSubstrateKind: declaredSubstrateKind,
		role:                  role,
		logger:                logger,
		lockTimeout:           defaultLockTimeout,
		status:                core.TargetStatusUninitialized,
		overlay:               newOriginOverlay(),
		ignorer:               &ignoreMatcher{inner: matcher},
	}
}

// ID returns the target's identifier.
func (t *SyncTarget) ID() string { return t.id }

// Role returns the target's role.
func (t *SyncTarget) Role() Role { return t.role }

// Initialize binds fs to the target. If isPrimary, a baseline snapshot
// is captured immediately; otherwise the target is marked as awaiting
// its initial bootstrap sync, per spec.md §4.3.
func (t *SyncTarget) Initialize(fs filesystem.FileSystem, isPrimary bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.declaredSubstrateKind != "" {
		if identifiable, ok := fs.(filesystem.SubstrateIdentifiable); ok {
			if identifiable.SubstrateKind() != t.declaredSubstrateKind {
				t.status = core.TargetStatusError
				return fmt.Errorf("target %s: substrate kind %q does not match declared kind %q: %w",
					t.id, identifiable.SubstrateKind(), t.declaredSubstrateKind, core.ErrInitializationFailed)
			}
		}
	}

	t.fs = fs

	if isPrimary {
		baseline, err := recursiveSnapshot(fs, "/", t.ignorer, t.overlay)
		if err != nil {
			t.status = core.TargetStatusError
			return fmt.Errorf("target %s: unable to capture baseline snapshot: %w", t.id, err)
		}
		t.baseline = baseline
	} else {
		t.baseline = make(snapshot)
		t.initialSyncPending = true
	}

	if !t.status.CanTransitionTo(core.TargetStatusIdle) {
		t.status = core.TargetStatusError
		return &core.InvalidTransitionError{Component: "target", From: t.status, To: core.TargetStatusIdle}
	}
	t.status = core.TargetStatusIdle
	return nil
}

// NotifyIncomingChanges acquires the target's FileSystem lock in sync
// mode and transitions the target to collecting, per spec.md §4.3. The
// paths argument is ignored; this method performs no scan of its own.
func (t *SyncTarget) NotifyIncomingChanges(paths []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notifyIncomingChangesLocked()
}

func (t *SyncTarget) notifyIncomingChangesLocked() error {
	if !t.status.CanTransitionTo(core.TargetStatusCollecting) {
		return &core.InvalidTransitionError{Component: "target", From: t.status, To: core.TargetStatusCollecting}
	}
	if err := t.fs.Lock(t.lockTimeout, "sync: incoming changes", filesystem.LockModeSync); err != nil {
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	t.status = core.TargetStatusCollecting
	return nil
}

// SyncComplete releases the target's lock and returns it to idle. It
// transitions the target to error if the release happens from a state
// the lifecycle doesn't allow.
func (t *SyncTarget) SyncComplete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.CanTransitionTo(core.TargetStatusIdle) {
		t.status = core.TargetStatusError
		return &core.InvalidTransitionError{Component: "target", From: t.status, To: core.TargetStatusIdle}
	}
	t.fs.ForceUnlock()
	t.status = core.TargetStatusIdle
	return nil
}

// GetMetadata returns metadata for each requested path, with the
// per-target origin-lastModified overlay applied.
func (t *SyncTarget) GetMetadata(paths []string) ([]filesystem.Metadata, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]filesystem.Metadata, 0, len(paths))
	for _, path := range paths {
		metadata, err := t.fs.GetMetadata(path)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.id, err)
		}
		if original, ok := t.overlay.get(path); ok {
			metadata.LastModifiedMillis = original
		}
		result = append(result, metadata)
	}
	return result, nil
}

// GetFileContent returns a content stream for path.
func (t *SyncTarget) GetFileContent(path string) (*filesystem.ContentStream, error) {
	t.mu.Lock()
	fs := t.fs
	t.mu.Unlock()

	stream, err := fs.GetFileContent(path)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.id, err)
	}
	return stream, nil
}

// ListDirectory lists the immediate children of path, with the origin
// overlay applied to each entry's reported last-modified time.
func (t *SyncTarget) ListDirectory(path string) ([]filesystem.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	items, err := t.fs.ListDirectory(path)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.id, err)
	}
	for i := range items {
		if original, ok := t.overlay.get(items[i].Path); ok {
			items[i].LastModifiedMillis = original
		}
	}
	return items, nil
}

// ApplyFileChange applies a single change originating from another
// target. It returns a non-nil FileConflict (and no error) if the
// destination's own content was found to be newer than the incoming
// change, per spec.md §4.3.
func (t *SyncTarget) ApplyFileChange(change core.FileChangeInfo, content *filesystem.ContentStream) (*core.FileConflict, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case core.TargetStatusIdle:
		// No prior notifyIncomingChanges call (the common propagation
		// path): acquire the lock and transition through collecting
		// ourselves.
		if err := t.notifyIncomingChangesLocked(); err != nil {
			return nil, err
		}
		t.status = core.TargetStatusSyncing
	case core.TargetStatusCollecting:
		// A caller already acquired the lock via notifyIncomingChanges
		// (the bootstrap path): just advance the state.
		t.status = core.TargetStatusSyncing
	case core.TargetStatusSyncing:
		// Proceed: a batch application already holds the lock.
	default:
		return nil, &core.InvalidTransitionError{Component: "target", From: t.status, To: core.TargetStatusSyncing}
	}

	conflict, err := t.applyLocked(change, content, false)
	if err != nil {
		t.status = core.TargetStatusError
		return nil, fmt.Errorf("target %s: %w", t.id, err)
	}
	return conflict, nil
}

// ApplyFileChangeForced behaves like ApplyFileChange but never reports a
// conflict: a destination whose content is newer than change is
// overwritten unconditionally. It is used by FileSyncManager to replay a
// resolved PendingSync onto the primary, where the timestamp that
// originally lost the conflict is the one an operator just confirmed.
func (t *SyncTarget) ApplyFileChangeForced(change core.FileChangeInfo, content *filesystem.ContentStream) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case core.TargetStatusIdle:
		if err := t.notifyIncomingChangesLocked(); err != nil {
			return err
		}
		t.status = core.TargetStatusSyncing
	case core.TargetStatusCollecting:
		t.status = core.TargetStatusSyncing
	case core.TargetStatusSyncing:
	default:
		return &core.InvalidTransitionError{Component: "target", From: t.status, To: core.TargetStatusSyncing}
	}

	if _, err := t.applyLocked(change, content, true); err != nil {
		t.status = core.TargetStatusError
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	return nil
}

// applyLocked performs the actual filesystem mutation for a single
// change. The caller must hold t.mu and must already have transitioned
// the target into syncing. When force is true, a destination with newer
// content is overwritten instead of reported as a conflict.
func (t *SyncTarget) applyLocked(change core.FileChangeInfo, content *filesystem.ContentStream, force bool) (*core.FileConflict, error) {
	path := change.Path

	if change.ChangeType == core.ChangeDelete {
		exists, err := t.fs.Exists(path)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
		if err := t.fs.DeleteItem(path, filesystem.DeleteOptions{Recursive: true}, true); err != nil {
			return nil, err
		}
		t.overlay.forget(path)
		return nil, nil
	}

	exists, err := t.fs.Exists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		existing, err := t.fs.GetMetadata(path)
		if err != nil {
			return nil, err
		}
		effectiveLastModified := existing.LastModifiedMillis
		if original, ok := t.overlay.get(path); ok {
			effectiveLastModified = original
		}
		if !force && effectiveLastModified > change.Metadata.LastModifiedMillis {
			return &core.FileConflict{
				Path:           path,
				SourceTargetID: change.SourceTargetID,
				TargetID:       t.id,
				Timestamp:      time.Now(),
			}, nil
		}
	}

	if change.Metadata.Kind == filesystem.KindDirectory {
		if err := t.fs.CreateDirectory(path, filesystem.CreateDirectoryOptions{Recursive: true}, true); err != nil {
			return nil, err
		}
	} else {
		parent := filesystem.Parent(path)
		if err := t.fs.CreateDirectory(parent, filesystem.CreateDirectoryOptions{Recursive: true}, true); err != nil {
			return nil, err
		}
		var body []byte
		if content != nil {
			body, err = filesystem.Drain(content.Reader)
			if err != nil {
				return nil, err
			}
		}
		if err := t.fs.WriteFile(path, body, true); err != nil {
			return nil, err
		}
	}

	t.overlay.record(path, change.Metadata.LastModifiedMillis)
	return nil, nil
}

// WriteExternalFile writes content to path as a non-sync (external)
// operation, used by callers outside the replication protocol itself
// (e.g. the tool bridge). It fails with ErrLocked if a sync cycle
// currently holds the target's lock, per spec.md §5.
func (t *SyncTarget) WriteExternalFile(path string, content []byte) error {
	t.mu.Lock()
	fs := t.fs
	t.mu.Unlock()
	if err := fs.CreateDirectory(filesystem.Parent(path), filesystem.CreateDirectoryOptions{Recursive: true}, false); err != nil {
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	if err := fs.WriteFile(path, content, false); err != nil {
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	return nil
}

// CreateExternalDirectory creates a directory at path as a non-sync
// operation.
func (t *SyncTarget) CreateExternalDirectory(path string, recursive bool) error {
	t.mu.Lock()
	fs := t.fs
	t.mu.Unlock()
	if err := fs.CreateDirectory(path, filesystem.CreateDirectoryOptions{Recursive: recursive}, false); err != nil {
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	return nil
}

// DeleteExternalItem deletes path as a non-sync operation.
func (t *SyncTarget) DeleteExternalItem(path string, recursive bool) error {
	t.mu.Lock()
	fs := t.fs
	t.mu.Unlock()
	if err := fs.DeleteItem(path, filesystem.DeleteOptions{Recursive: recursive}, false); err != nil {
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	return nil
}

// Watch starts the change detector, which will invoke callback with
// batches of locally-detected changes. Watch is only valid from idle.
func (t *SyncTarget) Watch(callback ChangeCallback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != core.TargetStatusIdle {
		return fmt.Errorf("target %s: %w", t.id, core.ErrWatchFailed)
	}

	t.detector = newChangeDetector(t, callback, t.logger)
	t.detector.start()
	return nil
}

// Unwatch stops the change detector. If the target is mid-collecting,
// it returns to idle.
func (t *SyncTarget) Unwatch() error {
	t.mu.Lock()
	detector := t.detector
	t.detector = nil
	t.mu.Unlock()

	if detector != nil {
		detector.stop()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == core.TargetStatusCollecting {
		t.fs.ForceUnlock()
		t.status = core.TargetStatusIdle
	}
	return nil
}

// GetState returns a snapshot of the target's lifecycle state.
func (t *SyncTarget) GetState() TargetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TargetState{
		ID:       t.id,
		Role:     t.role,
		Status:   t.status,
		Watching: t.detector != nil,
	}
}

// AllPaths returns every non-ignored path currently present on the
// target, in lexicographic order. The manager's bootstrap does not call
// it; it takes its own snapshots.
func (t *SyncTarget) AllPaths() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, err := recursiveSnapshot(t.fs, "/", t.ignorer, nil)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.id, err)
	}
	paths := make([]string, 0, len(snap))
	for path := range snap {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// snapshotNow takes a fresh snapshot of the target's current content,
// for use by the manager's bootstrap procedure. It does not touch the
// detector's baseline.
func (t *SyncTarget) snapshotNow() (snapshot, error) {
	t.mu.Lock()
	fs := t.fs
	ignorer := t.ignorer
	overlay := t.overlay
	t.mu.Unlock()
	return recursiveSnapshot(fs, "/", ignorer, overlay)
}

// finishCycle returns the target to idle after a manager-driven
// apply cycle: if the target is still syncing, it releases the lock
// normally; if the target landed in error, its lock is force-released
// so a future re-initialize isn't blocked by a stale lock.
func (t *SyncTarget) finishCycle() {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()

	switch status {
	case core.TargetStatusSyncing:
		_ = t.SyncComplete()
	case core.TargetStatusError:
		t.mu.Lock()
		if t.fs != nil {
			t.fs.ForceUnlock()
		}
		t.mu.Unlock()
	}
}

// markInitialSyncComplete clears the "awaiting initial bootstrap" flag
// set on a secondary at Initialize time and seeds the baseline used by
// the change detector from here on, so that the bootstrap's own writes
// aren't immediately re-detected as local changes.
func (t *SyncTarget) markInitialSyncComplete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	baseline, err := recursiveSnapshot(t.fs, "/", t.ignorer, t.overlay)
	if err != nil {
		return fmt.Errorf("target %s: %w", t.id, err)
	}
	t.baseline = baseline
	t.initialSyncPending = false
	return nil
}
