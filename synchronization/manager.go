package synchronization

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/internal/identifier"
	"github.com/mrsimpson/piddie-sub002/internal/logging"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

// ApplyResult is the outcome of applying a batch of changes to a
// single destination target, per spec.md §4.4 applyChangesToTarget.
type ApplyResult struct {
	TargetID       string
	Success        bool
	Err            error
	Requested      []core.FileChangeInfo
	AppliedChanges []core.FileChangeInfo
	Conflict       *core.FileConflict
}

// FileSyncManager owns at most one primary target and a set of
// secondary targets, and drives fan-out, bootstrap, and conflict
// resolution between them, per spec.md §4.4.
type FileSyncManager struct {
	mu     sync.Mutex
	logger *logging.Logger
	config ManagerConfig
	state  core.ManagerState

	primary        *SyncTarget
	secondaries    map[string]*SyncTarget
	secondaryOrder []string

	pending  *core.PendingSync
	progress *progressRegistry
}

// NewManager creates an uninitialized FileSyncManager.
func NewManager(config ManagerConfig, logger *logging.Logger) *FileSyncManager {
	return &FileSyncManager{
		logger:      logger,
		config:      config.withDefaults(),
		state:       core.ManagerStateUninitialized,
		secondaries: make(map[string]*SyncTarget),
		progress:    newProgressRegistry(logger),
	}
}

// OnProgress registers a progress listener and returns a function to
// unregister it.
func (m *FileSyncManager) OnProgress(listener ProgressListener) func() {
	return m.progress.register(listener)
}

// Primary returns the manager's primary target, or nil if none is
// registered.
func (m *FileSyncManager) Primary() *SyncTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primary
}

// GetState returns the manager's current lifecycle state.
func (m *FileSyncManager) GetState() core.ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize validates that every registered target is non-error and
// transitions the manager from uninitialized to ready.
func (m *FileSyncManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CanTransitionTo(core.ManagerStateReady) {
		return &core.InvalidTransitionError{Component: "manager", From: m.state, To: core.ManagerStateReady}
	}
	if m.primary != nil && m.primary.GetState().Status == core.TargetStatusError {
		return core.ErrInitializationFailed
	}
	for _, secondary := range m.secondaries {
		if secondary.GetState().Status == core.TargetStatusError {
			return core.ErrInitializationFailed
		}
	}
	m.state = core.ManagerStateReady
	return nil
}

// Dispose unwatches every target, clears all references, and returns
// the manager to uninitialized.
func (m *FileSyncManager) Dispose() {
	m.mu.Lock()
	primary := m.primary
	secondaries := make([]*SyncTarget, 0, len(m.secondaries))
	for _, secondary := range m.secondaries {
		secondaries = append(secondaries, secondary)
	}
	m.primary = nil
	m.secondaries = make(map[string]*SyncTarget)
	m.secondaryOrder = nil
	m.pending = nil
	m.state = core.ManagerStateUninitialized
	m.mu.Unlock()

	if primary != nil {
		_ = primary.Unwatch()
	}
	for _, secondary := range secondaries {
		_ = secondary.Unwatch()
	}
}

// RegisterTarget admits target into the manager under the given role,
// per spec.md §4.4 Registration. Admitting a primary bootstraps every
// existing secondary from it; admitting a secondary while a primary
// exists bootstraps the new secondary from the primary. Both cases
// then start watching the newly admitted target.
func (m *FileSyncManager) RegisterTarget(target *SyncTarget, role Role) error {
	if role != RolePrimary && role != RoleSecondary {
		return fmt.Errorf("invalid role: %w", core.ErrTargetNotFound)
	}
	if target.GetState().Status == core.TargetStatusError {
		return core.ErrInitializationFailed
	}
	target.mu.Lock()
	target.lockTimeout = m.config.LockTimeout
	target.mu.Unlock()

	m.mu.Lock()
	if _, exists := m.secondaries[target.id]; exists {
		m.mu.Unlock()
		return core.ErrTargetAlreadyExists
	}
	if m.primary != nil && m.primary.id == target.id {
		m.mu.Unlock()
		return core.ErrTargetAlreadyExists
	}
	if role == RolePrimary && m.primary != nil {
		m.mu.Unlock()
		return core.ErrPrimaryTargetExists
	}

	if role == RolePrimary {
		m.primary = target
		existing := make([]*SyncTarget, 0, len(m.secondaryOrder))
		for _, id := range m.secondaryOrder {
			existing = append(existing, m.secondaries[id])
		}
		m.mu.Unlock()

		for _, secondary := range existing {
			if err := m.fullSyncFromPrimaryToTarget(secondary); err != nil {
				m.logger.Warn(fmt.Errorf("bootstrap of %s from new primary %s failed: %w", secondary.id, target.id, err))
			}
		}
		return m.startWatching(target)
	}

	m.secondaries[target.id] = target
	m.secondaryOrder = append(m.secondaryOrder, target.id)
	primary := m.primary
	m.mu.Unlock()

	if primary != nil {
		if err := m.fullSyncFromPrimaryToTarget(target); err != nil {
			return err
		}
	}
	return m.startWatching(target)
}

// startWatching begins the target's change detector, routing its
// callbacks through handleTargetChanges.
func (m *FileSyncManager) startWatching(target *SyncTarget) error {
	return target.Watch(func(targetID string, changes []core.FileChangeInfo) {
		m.handleTargetChanges(targetID, changes)
	})
}

// UnregisterTarget stops watching the named target and removes it
// from the manager.
func (m *FileSyncManager) UnregisterTarget(id string) error {
	m.mu.Lock()
	var target *SyncTarget
	if m.primary != nil && m.primary.id == id {
		target = m.primary
		m.primary = nil
	} else if secondary, ok := m.secondaries[id]; ok {
		target = secondary
		delete(m.secondaries, id)
		for i, candidate := range m.secondaryOrder {
			if candidate == id {
				m.secondaryOrder = append(m.secondaryOrder[:i], m.secondaryOrder[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if target == nil {
		return core.ErrTargetNotFound
	}
	return target.Unwatch()
}

// handleTargetChanges is the entry point for changes detected on a
// target, per spec.md §4.4 "Change propagation protocol". It serializes
// the manager's own state transitions: only one propagation cycle runs
// at a time.
func (m *FileSyncManager) handleTargetChanges(sourceID string, changes []core.FileChangeInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	primary := m.primary
	if primary != nil && primary.id == sourceID {
		m.handlePrimaryChangesLocked(primary, changes)
		return
	}
	source, ok := m.secondaries[sourceID]
	if !ok {
		m.logger.Warn(fmt.Errorf("changes reported by unknown target %s", sourceID))
		return
	}
	m.handleSecondaryChangesLocked(source, changes)
}

func (m *FileSyncManager) handlePrimaryChangesLocked(primary *SyncTarget, changes []core.FileChangeInfo) {
	if !m.state.CanTransitionTo(core.ManagerStateSyncing) {
		return
	}
	m.state = core.ManagerStateSyncing

	results := make([]ApplyResult, 0, len(m.secondaryOrder))
	for _, id := range m.secondaryOrder {
		secondary := m.secondaries[id]
		result := m.applyChangesToTarget(secondary, primary, changes)
		secondary.finishCycle()
		results = append(results, result)
	}

	m.recordPendingLocked(primary.id, results)
	m.state = core.ManagerStateReady
}

func (m *FileSyncManager) handleSecondaryChangesLocked(source *SyncTarget, changes []core.FileChangeInfo) {
	if m.primary == nil {
		return
	}
	if !m.state.CanTransitionTo(core.ManagerStateSyncing) {
		return
	}
	m.state = core.ManagerStateSyncing

	primaryResult := m.applyChangesToTarget(m.primary, source, changes)
	m.primary.finishCycle()

	if !primaryResult.Success {
		pending := core.NewPendingSync(m.nextPendingID(), source.id)
		pending.RecordFailure(m.primary.id, changes)
		m.pending = pending
		m.state = core.ManagerStateConflict
		return
	}

	var fanoutResults []ApplyResult
	for _, id := range m.secondaryOrder {
		if id == source.id {
			continue
		}
		secondary := m.secondaries[id]
		result := m.applyChangesToTarget(secondary, m.primary, changes)
		secondary.finishCycle()
		fanoutResults = append(fanoutResults, result)
	}

	m.recordPendingLocked(source.id, fanoutResults)
	m.state = core.ManagerStateReady
}

// recordPendingLocked applies the Pending rules from spec.md §4.4: any
// failing destination is recorded; an all-success cycle clears the
// pending sync entirely.
func (m *FileSyncManager) recordPendingLocked(sourceID string, results []ApplyResult) {
	var failing []ApplyResult
	for _, result := range results {
		if !result.Success {
			failing = append(failing, result)
		}
	}
	if len(failing) == 0 {
		m.pending = nil
		return
	}
	if m.pending == nil {
		m.pending = core.NewPendingSync(m.nextPendingID(), sourceID)
	}
	for _, result := range failing {
		m.pending.RecordFailure(result.TargetID, result.Requested)
	}
}

func (m *FileSyncManager) nextPendingID() string {
	id, err := identifier.New(identifier.PrefixPendingSync)
	if err != nil {
		m.logger.Warn(fmt.Errorf("generating pending-sync id: %w", err))
		return identifier.PrefixPendingSync
	}
	return id
}

// applyChangesToTarget partitions changes into batches and applies
// each in turn to dest, sourcing content from src, per spec.md §4.4.
// Within a batch, per-change content resolution and application run
// concurrently; batches for a single destination are processed
// sequentially, and a batch failure halts further batches for dest.
func (m *FileSyncManager) applyChangesToTarget(dest, src *SyncTarget, changes []core.FileChangeInfo) ApplyResult {
	return m.applyChangesToTargetForce(dest, src, changes, false)
}

// applyChangesToTargetForce is applyChangesToTarget with the option to
// bypass destination-newer-wins conflict detection, for replaying a
// confirmed PendingSync onto the primary.
func (m *FileSyncManager) applyChangesToTargetForce(dest, src *SyncTarget, changes []core.FileChangeInfo, force bool) ApplyResult {
	result := ApplyResult{TargetID: dest.id, Success: true, Requested: changes}
	total := len(changes)
	synced := 0

	for _, batch := range partitionBatches(changes, m.config.MaxBatchSize) {
		if !result.Success {
			break
		}

		type outcome struct {
			change   core.FileChangeInfo
			conflict *core.FileConflict
			err      error
			phase    Phase
		}
		outcomes := make([]outcome, len(batch))

		group, _ := errgroup.WithContext(context.Background())
		for i, change := range batch {
			i, change := i, change
			group.Go(func() error {
				var stream *filesystem.ContentStream
				if change.ChangeType != core.ChangeDelete {
					s, err := src.GetFileContent(change.Path)
					if err != nil {
						outcomes[i] = outcome{change: change, err: err, phase: PhaseStreaming}
						return nil
					}
					stream = s
				}
				var conflict *core.FileConflict
				var err error
				if force {
					err = dest.ApplyFileChangeForced(change, stream)
				} else {
					conflict, err = dest.ApplyFileChange(change, stream)
				}
				if stream != nil {
					_ = stream.Close()
				}
				outcomes[i] = outcome{change: change, conflict: conflict, err: err, phase: PhaseApplying}
				return nil
			})
		}
		_ = group.Wait()

		for _, o := range outcomes {
			synced++
			m.progress.emit(ProgressEvent{
				Kind: ProgressSyncing, SourceTargetID: src.id, TargetID: dest.id,
				TotalFiles: total, SyncedFiles: synced, CurrentFile: o.change.Path,
			})

			switch {
			case o.err != nil:
				result.Success = false
				if result.Err == nil {
					result.Err = o.err
				}
				m.progress.emit(ProgressEvent{
					Kind: ProgressError, SourceTargetID: src.id, TargetID: dest.id,
					CurrentFile: o.change.Path, Err: o.err, Phase: o.phase,
				})
			case o.conflict != nil:
				result.Success = false
				result.Conflict = o.conflict
				if result.Err == nil {
					result.Err = fmt.Errorf("%s conflicts with newer content on %s: %w", o.change.Path, dest.id, core.ErrApplyFailed)
				}
			default:
				result.AppliedChanges = append(result.AppliedChanges, o.change)
			}
		}
	}

	m.progress.emit(ProgressEvent{
		Kind: ProgressCompleting, SourceTargetID: src.id, TargetID: dest.id,
		SuccessfulFiles: len(result.AppliedChanges), FailedFiles: total - len(result.AppliedChanges),
	})
	return result
}

// partitionBatches splits changes into ordered slices of at most size
// entries each.
func partitionBatches(changes []core.FileChangeInfo, size int) [][]core.FileChangeInfo {
	if size <= 0 {
		size = DefaultMaxBatchSize
	}
	var batches [][]core.FileChangeInfo
	for start := 0; start < len(changes); start += size {
		end := start + size
		if end > len(changes) {
			end = len(changes)
		}
		batches = append(batches, changes[start:end])
	}
	return batches
}

// fullSyncFromPrimaryToTarget wholesale-replaces destination's content
// with the primary's, per spec.md §4.4 Bootstrap/reinitialize.
func (m *FileSyncManager) fullSyncFromPrimaryToTarget(destination *SyncTarget) error {
	m.mu.Lock()
	primary := m.primary
	m.mu.Unlock()
	if primary == nil {
		return core.ErrNoPrimaryTarget
	}

	primarySnapshot, err := primary.snapshotNow()
	if err != nil {
		return fmt.Errorf("reading primary snapshot: %w", err)
	}
	primaryPaths := make([]string, 0, len(primarySnapshot))
	for path := range primarySnapshot {
		primaryPaths = append(primaryPaths, path)
	}
	sort.Strings(primaryPaths)

	if err := destination.NotifyIncomingChanges(primaryPaths); err != nil {
		return fmt.Errorf("target %s: %w", destination.id, err)
	}

	destSnapshot, err := destination.snapshotNow()
	if err != nil {
		destination.finishCycle()
		return fmt.Errorf("reading destination snapshot: %w", err)
	}

	deletePaths := make([]string, 0, len(destSnapshot))
	for path := range destSnapshot {
		deletePaths = append(deletePaths, path)
	}
	// Depth-first: longer paths (deeper, more likely to be children)
	// are deleted before their ancestors.
	sort.Slice(deletePaths, func(i, j int) bool { return len(deletePaths[i]) > len(deletePaths[j]) })

	deletes := make([]core.FileChangeInfo, 0, len(deletePaths))
	for _, path := range deletePaths {
		deletes = append(deletes, core.FileChangeInfo{
			Path:           path,
			ChangeType:     core.ChangeDelete,
			Metadata:       filesystem.Metadata{Path: path, Kind: destSnapshot[path].kind},
			SourceTargetID: primary.id,
		})
	}
	if len(deletes) > 0 {
		if result := m.applyChangesToTarget(destination, primary, deletes); !result.Success {
			destination.finishCycle()
			return fmt.Errorf("clearing target %s: %w", destination.id, result.Err)
		}
	}

	creates := make([]core.FileChangeInfo, 0, len(primaryPaths))
	for _, path := range primaryPaths {
		entry := primarySnapshot[path]
		creates = append(creates, core.FileChangeInfo{
			Path:       path,
			ChangeType: core.ChangeCreate,
			Metadata: filesystem.Metadata{
				Path: path, Kind: entry.kind, ContentHash: entry.contentHash,
				LastModifiedMillis: entry.lastModifiedMillis,
			},
			SourceTargetID: primary.id,
		})
	}
	if len(creates) > 0 {
		if result := m.applyChangesToTarget(destination, primary, creates); !result.Success {
			destination.finishCycle()
			return fmt.Errorf("seeding target %s: %w", destination.id, result.Err)
		}
	}

	if err := destination.markInitialSyncComplete(); err != nil {
		return fmt.Errorf("target %s: %w", destination.id, err)
	}
	if err := destination.SyncComplete(); err != nil {
		return fmt.Errorf("target %s: %w", destination.id, err)
	}
	return nil
}

// Reinitialize re-runs the bootstrap procedure against an already
// registered destination, for operator-triggered recovery after a
// target lands in error.
func (m *FileSyncManager) Reinitialize(targetID string) error {
	m.mu.Lock()
	var target *SyncTarget
	if m.primary != nil && m.primary.id == targetID {
		target = m.primary
	} else {
		target = m.secondaries[targetID]
	}
	m.mu.Unlock()

	if target == nil {
		return core.ErrTargetNotFound
	}
	if target == m.primary {
		return fmt.Errorf("cannot reinitialize the primary target: %w", core.ErrInitializationFailed)
	}
	return m.fullSyncFromPrimaryToTarget(target)
}

// GetPendingSync returns the manager's current PendingSync, or nil.
func (m *FileSyncManager) GetPendingSync() *core.PendingSync {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// GetPendingChanges returns the deduplicated list of changes across
// all pending targets, by path, last write wins.
func (m *FileSyncManager) GetPendingChanges() []core.FileChangeInfo {
	m.mu.Lock()
	pending := m.pending
	m.mu.Unlock()
	if pending == nil {
		return nil
	}
	return pending.DedupedChanges()
}

// GetPendingChangeContent returns a content stream for path, sourced
// from the pending sync's originating target.
func (m *FileSyncManager) GetPendingChangeContent(path string) (*filesystem.ContentStream, error) {
	m.mu.Lock()
	pending := m.pending
	var source *SyncTarget
	if pending != nil {
		if pending.SourceTargetID == m.primary.id {
			source = m.primary
		} else {
			source = m.secondaries[pending.SourceTargetID]
		}
	}
	m.mu.Unlock()

	if pending == nil {
		return nil, core.ErrNoPendingSync
	}
	if source == nil {
		return nil, core.ErrSourceNotAvailable
	}
	return source.GetFileContent(path)
}

// ConfirmPrimarySync replays the pending changes onto the primary; on
// success it reinitializes every other secondary and clears the
// pending sync, returning the manager to ready.
func (m *FileSyncManager) ConfirmPrimarySync() error {
	m.mu.Lock()
	if m.state != core.ManagerStateConflict {
		m.mu.Unlock()
		return &core.InvalidTransitionError{Component: "manager", From: m.state, To: core.ManagerStateReady}
	}
	pending := m.pending
	primary := m.primary
	var source *SyncTarget
	if pending != nil {
		if pending.SourceTargetID == primary.id {
			source = primary
		} else {
			source = m.secondaries[pending.SourceTargetID]
		}
	}
	m.mu.Unlock()

	if pending == nil {
		return core.ErrNoPendingSync
	}
	if source == nil {
		return core.ErrSourceNotAvailable
	}

	changes := pending.DedupedChanges()
	result := m.applyChangesToTargetForce(primary, source, changes, true)
	primary.finishCycle()
	if !result.Success {
		return fmt.Errorf("replaying pending changes onto primary: %w", result.Err)
	}

	m.mu.Lock()
	secondaries := make([]*SyncTarget, 0, len(m.secondaryOrder))
	for _, id := range m.secondaryOrder {
		if id != pending.SourceTargetID {
			secondaries = append(secondaries, m.secondaries[id])
		}
	}
	m.mu.Unlock()

	for _, secondary := range secondaries {
		if err := m.fullSyncFromPrimaryToTarget(secondary); err != nil {
			m.logger.Warn(fmt.Errorf("reinitializing %s after confirmed sync: %w", secondary.id, err))
		}
	}

	m.mu.Lock()
	m.pending = nil
	m.state = core.ManagerStateReady
	m.mu.Unlock()
	return nil
}

// RejectPendingSync discards the pending sync and returns the manager
// to ready.
func (m *FileSyncManager) RejectPendingSync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != core.ManagerStateConflict {
		return &core.InvalidTransitionError{Component: "manager", From: m.state, To: core.ManagerStateReady}
	}
	m.pending = nil
	m.state = core.ManagerStateReady
	return nil
}
