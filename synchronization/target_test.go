package synchronization

import (
	"testing"
	"time"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/filesystem/memfs"
	"github.com/mrsimpson/piddie-sub002/ignore"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

func newMemTarget(t *testing.T, id string, role Role, isPrimary bool) (*SyncTarget, *memfs.FileSystem) {
	t.Helper()
	fs := memfs.New(hashing.AlgorithmSHA256)
	target := NewTarget(id, role, filesystem.SubstrateKindMemory, nil, nil)
	if err := target.Initialize(fs, isPrimary); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return target, fs
}

func TestTargetInitializeRejectsSubstrateMismatch(t *testing.T) {
	fs := memfs.New(hashing.AlgorithmSHA256)
	target := NewTarget("t1", RolePrimary, filesystem.SubstrateKindNative, nil, nil)
	if err := target.Initialize(fs, true); err == nil {
		t.Error("expected error when declared substrate kind does not match")
	}
	if target.GetState().Status != core.TargetStatusError {
		t.Errorf("target should land in error, got %v", target.GetState().Status)
	}
}

func TestTargetInitializePrimaryCapturesBaseline(t *testing.T) {
	fs := memfs.New(hashing.AlgorithmSHA256)
	mustWrite(t, fs, "/a.txt", "hello")
	target := NewTarget("primary", RolePrimary, filesystem.SubstrateKindMemory, nil, nil)
	if err := target.Initialize(fs, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if target.GetState().Status != core.TargetStatusIdle {
		t.Fatalf("expected idle after Initialize, got %v", target.GetState().Status)
	}
	target.mu.Lock()
	_, captured := target.baseline["/a.txt"]
	target.mu.Unlock()
	if !captured {
		t.Error("baseline should contain /a.txt, written before Initialize")
	}
}

func TestApplyFileChangeFromIdleAutoLocks(t *testing.T) {
	target, _ := newMemTarget(t, "dest", RoleSecondary, false)

	change := core.FileChangeInfo{
		Path:       "/a.txt",
		ChangeType: core.ChangeCreate,
		Metadata:   filesystem.Metadata{Path: "/a.txt", Kind: filesystem.KindFile, LastModifiedMillis: time.Now().UnixMilli()},
	}
	stream := contentStream(t, "hello")
	conflict, err := target.ApplyFileChange(change, stream)
	if err != nil {
		t.Fatalf("ApplyFileChange: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}
	if target.GetState().Status != core.TargetStatusSyncing {
		t.Errorf("target should remain in syncing until SyncComplete, got %v", target.GetState().Status)
	}
	if err := target.SyncComplete(); err != nil {
		t.Fatalf("SyncComplete: %v", err)
	}
}

func TestApplyFileChangeFromCollectingAdvances(t *testing.T) {
	target, _ := newMemTarget(t, "dest", RoleSecondary, false)

	if err := target.NotifyIncomingChanges(nil); err != nil {
		t.Fatalf("NotifyIncomingChanges: %v", err)
	}
	if target.GetState().Status != core.TargetStatusCollecting {
		t.Fatalf("expected collecting, got %v", target.GetState().Status)
	}

	change := core.FileChangeInfo{
		Path:       "/a.txt",
		ChangeType: core.ChangeCreate,
		Metadata:   filesystem.Metadata{Path: "/a.txt", Kind: filesystem.KindFile, LastModifiedMillis: time.Now().UnixMilli()},
	}
	if _, err := target.ApplyFileChange(change, contentStream(t, "hello")); err != nil {
		t.Fatalf("ApplyFileChange: %v", err)
	}
	if target.GetState().Status != core.TargetStatusSyncing {
		t.Errorf("expected syncing after apply from collecting, got %v", target.GetState().Status)
	}
}

func TestApplyFileChangeFromSyncingProceeds(t *testing.T) {
	target, _ := newMemTarget(t, "dest", RoleSecondary, false)

	change1 := core.FileChangeInfo{
		Path:       "/a.txt",
		ChangeType: core.ChangeCreate,
		Metadata:   filesystem.Metadata{Path: "/a.txt", Kind: filesystem.KindFile, LastModifiedMillis: time.Now().UnixMilli()},
	}
	if _, err := target.ApplyFileChange(change1, contentStream(t, "hello")); err != nil {
		t.Fatalf("first ApplyFileChange: %v", err)
	}

	change2 := core.FileChangeInfo{
		Path:       "/b.txt",
		ChangeType: core.ChangeCreate,
		Metadata:   filesystem.Metadata{Path: "/b.txt", Kind: filesystem.KindFile, LastModifiedMillis: time.Now().UnixMilli()},
	}
	if _, err := target.ApplyFileChange(change2, contentStream(t, "world")); err != nil {
		t.Fatalf("second ApplyFileChange while syncing: %v", err)
	}
}

func TestApplyFileChangeRejectsFromError(t *testing.T) {
	target, _ := newMemTarget(t, "dest", RoleSecondary, false)
	target.mu.Lock()
	target.status = core.TargetStatusError
	target.mu.Unlock()

	change := core.FileChangeInfo{Path: "/a.txt", ChangeType: core.ChangeCreate}
	if _, err := target.ApplyFileChange(change, nil); err == nil {
		t.Error("expected INVALID_OPERATION from error state")
	}
}

func TestApplyFileChangeDetectsConflict(t *testing.T) {
	target, fs := newMemTarget(t, "dest", RoleSecondary, false)
	mustWrite(t, fs, "/a.txt", "local-newer")
	metadata, err := fs.GetMetadata("/a.txt")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}

	incoming := core.FileChangeInfo{
		Path:           "/a.txt",
		ChangeType:     core.ChangeModify,
		SourceTargetID: "primary",
		Metadata:       filesystem.Metadata{Path: "/a.txt", Kind: filesystem.KindFile, LastModifiedMillis: metadata.LastModifiedMillis - 10_000},
	}
	conflict, err := target.ApplyFileChange(incoming, contentStream(t, "incoming-older"))
	if err != nil {
		t.Fatalf("ApplyFileChange: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict when destination content is newer")
	}
	if conflict.TargetID != "dest" || conflict.SourceTargetID != "primary" {
		t.Errorf("unexpected conflict fields: %+v", conflict)
	}

	content, err := fs.ReadFile("/a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "local-newer" {
		t.Error("destination content should be untouched on conflict")
	}
}

func TestApplyFileChangeDelete(t *testing.T) {
	target, fs := newMemTarget(t, "dest", RoleSecondary, false)
	mustWrite(t, fs, "/a.txt", "gone-soon")

	change := core.FileChangeInfo{Path: "/a.txt", ChangeType: core.ChangeDelete, Metadata: filesystem.Metadata{Path: "/a.txt", Kind: filesystem.KindFile}}
	if _, err := target.ApplyFileChange(change, nil); err != nil {
		t.Fatalf("ApplyFileChange delete: %v", err)
	}
	if exists, _ := fs.Exists("/a.txt"); exists {
		t.Error("/a.txt should have been deleted")
	}
}

func TestApplyFileChangeDeleteOfMissingPathIsNoop(t *testing.T) {
	target, _ := newMemTarget(t, "dest", RoleSecondary, false)
	change := core.FileChangeInfo{Path: "/missing.txt", ChangeType: core.ChangeDelete}
	if _, err := target.ApplyFileChange(change, nil); err != nil {
		t.Fatalf("deleting an already-absent path should be a no-op, got: %v", err)
	}
}

func TestWriteExternalFileBypassesLifecycle(t *testing.T) {
	target, fs := newMemTarget(t, "dest", RoleSecondary, false)
	if err := target.WriteExternalFile("/a.txt", []byte("external")); err != nil {
		t.Fatalf("WriteExternalFile: %v", err)
	}
	content, err := fs.ReadFile("/a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "external" {
		t.Errorf("content = %q, want external", content)
	}
	if target.GetState().Status != core.TargetStatusIdle {
		t.Errorf("external write must not affect lifecycle, got %v", target.GetState().Status)
	}
}

func TestWriteExternalFileBlockedDuringSync(t *testing.T) {
	target, _ := newMemTarget(t, "dest", RoleSecondary, false)
	if err := target.NotifyIncomingChanges(nil); err != nil {
		t.Fatalf("NotifyIncomingChanges: %v", err)
	}
	defer target.SyncComplete()

	if err := target.WriteExternalFile("/a.txt", []byte("external")); err == nil {
		t.Error("external write should be rejected while a sync lock is held")
	}
}

func TestAllPathsExcludesIgnored(t *testing.T) {
	fs := memfs.New(hashing.AlgorithmSHA256)
	matcher := ignore.New(nil)
	target := NewTarget("t1", RolePrimary, "", matcher, nil)
	if err := target.Initialize(fs, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	mustWrite(t, fs, "/keep.txt", "x")
	mustMkdirAll(t, fs, "/.git")
	mustWrite(t, fs, "/.git/HEAD", "ref")

	paths, err := target.AllPaths()
	if err != nil {
		t.Fatalf("AllPaths: %v", err)
	}
	for _, path := range paths {
		if path == "/.git" || path == "/.git/HEAD" {
			t.Errorf("AllPaths should exclude .git, got %v", paths)
		}
	}
}

func contentStream(t *testing.T, content string) *filesystem.ContentStream {
	t.Helper()
	chunk := filesystem.Chunk{Bytes: []byte(content), ChunkIndex: 0, TotalChunks: 1}
	reader := filesystem.NewSliceChunkReader([]filesystem.Chunk{chunk})
	return filesystem.NewContentStream(filesystem.Metadata{}, reader, nil)
}
