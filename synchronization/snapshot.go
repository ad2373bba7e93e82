package synchronization

import (
	"sort"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

// snapshotEntry is the baseline state the change detector compares
// against on each tick.
type snapshotEntry struct {
	kind               filesystem.Kind
	lastModifiedMillis int64
	contentHash        string
}

// snapshot maps a normalized path to its last-observed state.
type snapshot map[string]snapshotEntry

// recursiveSnapshot walks fs depth-first from root, building a snapshot
// of every file and directory beneath it (root itself excluded), and
// skipping anything ignored per ignorer. Metadata lastModified values
// are overridden by overlay where present, so that sync-origin writes
// are not observed as local modifications on the very next tick (the
// overlay effect required by invariant I5).
func recursiveSnapshot(fs filesystem.FileSystem, root string, ignorer *ignoreMatcher, overlay *originOverlay) (snapshot, error) {
	result := make(snapshot)
	if err := walk(fs, root, ignorer, overlay, result); err != nil {
		return nil, err
	}
	return result, nil
}

// walk recursively populates result with every non-ignored entry
// beneath path.
func walk(fs filesystem.FileSystem, path string, ignorer *ignoreMatcher, overlay *originOverlay, result snapshot) error {
	items, err := fs.ListDirectory(path)
	if err != nil {
		return err
	}

	for _, item := range items {
		isDir := item.Kind == filesystem.KindDirectory
		if ignorer.isIgnored(item.Path, isDir) {
			continue
		}

		lastModified := item.LastModifiedMillis
		if overlay != nil {
			if original, ok := overlay.get(item.Path); ok {
				lastModified = original
			}
		}

		entry := snapshotEntry{kind: item.Kind, lastModifiedMillis: lastModified}
		if !isDir {
			metadata, err := fs.GetMetadata(item.Path)
			if err != nil {
				return err
			}
			entry.contentHash = metadata.ContentHash
		}
		result[item.Path] = entry

		if isDir {
			if err := walk(fs, item.Path, ignorer, overlay, result); err != nil {
				return err
			}
		}
	}
	return nil
}

// diff computes the ordered list of FileChangeInfo entries needed to
// turn previous into current. Creates and modifies are reported for
// anything new or changed in current; deletes are reported for
// anything present in previous but absent from current. Order follows
// a stable traversal of current for create/modify, then of previous
// for deletes, which keeps output deterministic for tests without
// implying any ordering guarantee to callers (spec.md §9 leaves delete
// ordering unspecified; see invariant I7).
func diff(previous, current snapshot, sourceTargetID string) []core.FileChangeInfo {
	var changes []core.FileChangeInfo

	currentPaths := make([]string, 0, len(current))
	for path := range current {
		currentPaths = append(currentPaths, path)
	}
	sort.Strings(currentPaths)
	for _, path := range currentPaths {
		entry := current[path]
		prior, existed := previous[path]
		changed := !existed || prior.lastModifiedMillis != entry.lastModifiedMillis || prior.contentHash != entry.contentHash || prior.kind != entry.kind
		if !changed {
			continue
		}
		changeType := core.ChangeModify
		if !existed {
			changeType = core.ChangeCreate
		}
		changes = append(changes, core.FileChangeInfo{
			Path:       path,
			ChangeType: changeType,
			Metadata: filesystem.Metadata{
				Path:               path,
				Kind:               entry.kind,
				ContentHash:        entry.contentHash,
				LastModifiedMillis: entry.lastModifiedMillis,
			},
			SourceTargetID: sourceTargetID,
		})
	}

	previousPaths := make([]string, 0, len(previous))
	for path := range previous {
		previousPaths = append(previousPaths, path)
	}
	sort.Strings(previousPaths)
	for _, path := range previousPaths {
		entry := previous[path]
		if _, stillExists := current[path]; stillExists {
			continue
		}
		changes = append(changes, core.FileChangeInfo{
			Path:       path,
			ChangeType: core.ChangeDelete,
			Metadata: filesystem.Metadata{
				Path: path,
				Kind: entry.kind,
			},
			SourceTargetID: sourceTargetID,
		})
	}

	return changes
}
