package core

import "time"

// PendingTargetEntry records the outcome of the most recent propagation
// attempt to a single destination target.
type PendingTargetEntry struct {
	// Changes is the ordered list of changes that were (or were being)
	// applied to this target.
	Changes []FileChangeInfo
	// Timestamp is when this entry was recorded.
	Timestamp time.Time
	// Failed indicates that propagation to this target failed.
	Failed bool
}

// PendingSync records that at least one destination failed to accept a
// change batch, per spec.md §3 and the Pending rules in §4.4. At most
// one PendingSync is retained by a manager at any time; a new pending
// supersedes the old one entirely.
type PendingSync struct {
	// ID is a unique identifier for this pending-sync record.
	ID string
	// SourceTargetID identifies the target the changes originated from.
	SourceTargetID string
	// PendingByTarget maps destination target id to that destination's
	// outcome.
	PendingByTarget map[string]*PendingTargetEntry
}

// NewPendingSync creates an empty PendingSync for the given source.
func NewPendingSync(id, sourceTargetID string) *PendingSync {
	return &PendingSync{
		ID:              id,
		SourceTargetID:  sourceTargetID,
		PendingByTarget: make(map[string]*PendingTargetEntry),
	}
}

// RecordFailure records that propagation of changes to targetID failed.
func (p *PendingSync) RecordFailure(targetID string, changes []FileChangeInfo) {
	p.PendingByTarget[targetID] = &PendingTargetEntry{
		Changes:   append([]FileChangeInfo(nil), changes...),
		Timestamp: time.Now(),
		Failed:    true,
	}
}

// HasAnyFailure reports whether any destination recorded in this
// pending sync is currently marked failed.
func (p *PendingSync) HasAnyFailure() bool {
	for _, entry := range p.PendingByTarget {
		if entry.Failed {
			return true
		}
	}
	return false
}

// DedupedChanges returns the deduplicated list of changes across all
// pending targets, keyed by path with the last-recorded entry for a
// given path winning, per spec.md §4.4 getPendingChanges.
func (p *PendingSync) DedupedChanges() []FileChangeInfo {
	byPath := make(map[string]FileChangeInfo)
	var order []string
	for _, entry := range p.PendingByTarget {
		for _, change := range entry.Changes {
			if _, exists := byPath[change.Path]; !exists {
				order = append(order, change.Path)
			}
			byPath[change.Path] = change
		}
	}
	result := make([]FileChangeInfo, 0, len(order))
	for _, path := range order {
		result = append(result, byPath[path])
	}
	return result
}
