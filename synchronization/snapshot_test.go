package synchronization

import (
	"testing"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/filesystem/memfs"
	"github.com/mrsimpson/piddie-sub002/ignore"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

func TestRecursiveSnapshotSkipsIgnored(t *testing.T) {
	fs := memfs.New(hashing.AlgorithmSHA256)
	mustWrite(t, fs, "/keep.txt", "a")
	mustMkdirAll(t, fs, "/.git")
	mustWrite(t, fs, "/.git/HEAD", "ref")

	matcher := &ignoreMatcher{inner: ignore.New(nil)}
	snap, err := recursiveSnapshot(fs, "/", matcher, nil)
	if err != nil {
		t.Fatalf("recursiveSnapshot: %v", err)
	}
	if _, ok := snap["/keep.txt"]; !ok {
		t.Error("expected /keep.txt in snapshot")
	}
	if _, ok := snap["/.git/HEAD"]; ok {
		t.Error(".git contents should never appear in a snapshot")
	}
}

func TestDiffDetectsCreateModifyDelete(t *testing.T) {
	previous := snapshot{
		"/unchanged.txt": {kind: filesystem.KindFile, contentHash: "h1", lastModifiedMillis: 1},
		"/removed.txt":   {kind: filesystem.KindFile, contentHash: "h2", lastModifiedMillis: 1},
		"/changed.txt":   {kind: filesystem.KindFile, contentHash: "h3", lastModifiedMillis: 1},
	}
	current := snapshot{
		"/unchanged.txt": {kind: filesystem.KindFile, contentHash: "h1", lastModifiedMillis: 1},
		"/changed.txt":   {kind: filesystem.KindFile, contentHash: "h3-new", lastModifiedMillis: 2},
		"/new.txt":       {kind: filesystem.KindFile, contentHash: "h4", lastModifiedMillis: 3},
	}

	changes := diff(previous, current, "source")
	byPath := make(map[string]core.FileChangeInfo)
	for _, change := range changes {
		byPath[change.Path] = change
	}

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(changes), changes)
	}
	if byPath["/new.txt"].ChangeType != core.ChangeCreate {
		t.Errorf("/new.txt should be a create")
	}
	if byPath["/changed.txt"].ChangeType != core.ChangeModify {
		t.Errorf("/changed.txt should be a modify")
	}
	if byPath["/removed.txt"].ChangeType != core.ChangeDelete {
		t.Errorf("/removed.txt should be a delete")
	}
	if _, ok := byPath["/unchanged.txt"]; ok {
		t.Error("/unchanged.txt should not appear in the diff")
	}
	for _, change := range changes {
		if change.SourceTargetID != "source" {
			t.Errorf("change %s: SourceTargetID = %q, want source", change.Path, change.SourceTargetID)
		}
	}
}

func TestDiffEmptyWhenUnchanged(t *testing.T) {
	snap := snapshot{"/a.txt": {kind: filesystem.KindFile, contentHash: "h", lastModifiedMillis: 1}}
	if changes := diff(snap, snap, "source"); len(changes) != 0 {
		t.Errorf("expected no changes comparing a snapshot to itself, got %+v", changes)
	}
}

func mustWrite(t *testing.T, fs *memfs.FileSystem, path, content string) {
	t.Helper()
	if err := fs.WriteFile(path, []byte(content), true); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func mustMkdirAll(t *testing.T, fs *memfs.FileSystem, path string) {
	t.Helper()
	if err := fs.CreateDirectory(path, filesystem.CreateDirectoryOptions{Recursive: true}, true); err != nil {
		t.Fatalf("CreateDirectory(%s): %v", path, err)
	}
}
