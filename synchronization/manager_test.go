package synchronization

import (
	"fmt"
	"testing"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/filesystem/memfs"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

func TestRegisterTargetRejectsSecondPrimary(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, _ := newMemTarget(t, "primary", RolePrimary, true)
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}

	other, _ := newMemTarget(t, "other", RolePrimary, true)
	if err := manager.RegisterTarget(other, RolePrimary); err != core.ErrPrimaryTargetExists {
		t.Errorf("expected ErrPrimaryTargetExists, got %v", err)
	}
}

func TestRegisterTargetRejectsDuplicateID(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, _ := newMemTarget(t, "shared", RolePrimary, true)
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}

	secondary, _ := newMemTarget(t, "shared", RoleSecondary, false)
	if err := manager.RegisterTarget(secondary, RoleSecondary); err != core.ErrTargetAlreadyExists {
		t.Errorf("expected ErrTargetAlreadyExists, got %v", err)
	}
}

func TestRegisterSecondaryBootstrapsFromPrimary(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	mustWrite(t, primaryFS, "/a.txt", "hello")
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}

	secondary, secondaryFS := newMemTarget(t, "secondary", RoleSecondary, false)
	if err := manager.RegisterTarget(secondary, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary): %v", err)
	}

	content, err := secondaryFS.ReadFile("/a.txt")
	if err != nil {
		t.Fatalf("bootstrap should have copied /a.txt onto the secondary: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("content = %q, want hello", content)
	}
	if secondary.GetState().Status != core.TargetStatusIdle {
		t.Errorf("secondary should return to idle after bootstrap, got %v", secondary.GetState().Status)
	}
}

func TestRegisterPrimaryBootstrapsExistingSecondaries(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	secondary, secondaryFS := newMemTarget(t, "secondary", RoleSecondary, false)
	if err := manager.RegisterTarget(secondary, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary): %v", err)
	}

	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	mustWrite(t, primaryFS, "/a.txt", "hello")
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}

	if _, err := secondaryFS.ReadFile("/a.txt"); err != nil {
		t.Errorf("secondary registered before the primary should still be bootstrapped once the primary arrives: %v", err)
	}
}

func TestPrimaryChangePropagatesToSecondaries(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}
	secondary, secondaryFS := newMemTarget(t, "secondary", RoleSecondary, false)
	if err := manager.RegisterTarget(secondary, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary): %v", err)
	}
	if err := manager.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	mustWrite(t, primaryFS, "/new.txt", "content")
	changes := []core.FileChangeInfo{
		{
			Path:       "/new.txt",
			ChangeType: core.ChangeCreate,
			Metadata:   mustMetadata(t, primaryFS, "/new.txt"),
		},
	}
	manager.handleTargetChanges(primary.ID(), changes)

	content, err := secondaryFS.ReadFile("/new.txt")
	if err != nil {
		t.Fatalf("change should have propagated to the secondary: %v", err)
	}
	if string(content) != "content" {
		t.Errorf("content = %q, want content", content)
	}
	if manager.GetState() != core.ManagerStateReady {
		t.Errorf("manager should return to ready, got %v", manager.GetState())
	}
}

func TestSecondaryChangeAppliesToPrimaryThenFansOut(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}
	secondaryA, secondaryAFS := newMemTarget(t, "secondary-a", RoleSecondary, false)
	if err := manager.RegisterTarget(secondaryA, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary-a): %v", err)
	}
	secondaryB, secondaryBFS := newMemTarget(t, "secondary-b", RoleSecondary, false)
	if err := manager.RegisterTarget(secondaryB, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary-b): %v", err)
	}
	if err := manager.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	mustWrite(t, secondaryAFS, "/from-a.txt", "authored-on-a")
	changes := []core.FileChangeInfo{
		{
			Path:           "/from-a.txt",
			ChangeType:     core.ChangeCreate,
			SourceTargetID: secondaryA.ID(),
			Metadata:       mustMetadata(t, secondaryAFS, "/from-a.txt"),
		},
	}
	manager.handleTargetChanges(secondaryA.ID(), changes)

	if _, err := primaryFS.ReadFile("/from-a.txt"); err != nil {
		t.Errorf("secondary-originated change should land on the primary first: %v", err)
	}
	if _, err := secondaryBFS.ReadFile("/from-a.txt"); err != nil {
		t.Errorf("secondary-originated change should fan out to the other secondary: %v", err)
	}
	if manager.GetState() != core.ManagerStateReady {
		t.Errorf("manager should return to ready on success, got %v", manager.GetState())
	}
}

func TestSecondaryChangeRejectedByPrimaryEntersConflict(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	mustWrite(t, primaryFS, "/contested.txt", "primary-is-newer")
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}
	secondary, secondaryFS := newMemTarget(t, "secondary", RoleSecondary, false)
	if err := manager.RegisterTarget(secondary, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary): %v", err)
	}
	if err := manager.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	primaryMetadata, err := primaryFS.GetMetadata("/contested.txt")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	mustWrite(t, secondaryFS, "/contested.txt", "secondary-is-stale")
	staleMetadata := mustMetadata(t, secondaryFS, "/contested.txt")
	staleMetadata.LastModifiedMillis = primaryMetadata.LastModifiedMillis - 60_000

	manager.handleTargetChanges(secondary.ID(), []core.FileChangeInfo{
		{
			Path:           "/contested.txt",
			ChangeType:     core.ChangeModify,
			SourceTargetID: secondary.ID(),
			Metadata:       staleMetadata,
		},
	})

	if manager.GetState() != core.ManagerStateConflict {
		t.Fatalf("expected conflict state, got %v", manager.GetState())
	}
	pending := manager.GetPendingSync()
	if pending == nil {
		t.Fatal("expected a pending sync")
	}
	if pending.SourceTargetID != secondary.ID() {
		t.Errorf("SourceTargetID = %q, want %q", pending.SourceTargetID, secondary.ID())
	}

	content, err := primaryFS.ReadFile("/contested.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "primary-is-newer" {
		t.Error("primary content should be untouched by the rejected change")
	}
}

func TestRejectPendingSyncReturnsToReady(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	manager.state = core.ManagerStateConflict
	manager.pending = core.NewPendingSync("pend_x", "secondary")

	if err := manager.RejectPendingSync(); err != nil {
		t.Fatalf("RejectPendingSync: %v", err)
	}
	if manager.GetState() != core.ManagerStateReady {
		t.Errorf("expected ready, got %v", manager.GetState())
	}
	if manager.GetPendingSync() != nil {
		t.Error("pending sync should be cleared")
	}
}

func TestConfirmPrimarySyncWithoutConflictFails(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	if err := manager.ConfirmPrimarySync(); err == nil {
		t.Error("expected error confirming with no pending conflict")
	}
}

func TestConfirmPrimarySyncReplaysAndReinitializes(t *testing.T) {
	manager := NewManager(ManagerConfig{}, nil)
	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	mustWrite(t, primaryFS, "/contested.txt", "primary-is-newer")
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}
	secondaryA, secondaryAFS := newMemTarget(t, "secondary-a", RoleSecondary, false)
	if err := manager.RegisterTarget(secondaryA, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary-a): %v", err)
	}
	secondaryB, secondaryBFS := newMemTarget(t, "secondary-b", RoleSecondary, false)
	if err := manager.RegisterTarget(secondaryB, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary-b): %v", err)
	}
	if err := manager.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	primaryMetadata, err := primaryFS.GetMetadata("/contested.txt")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	staleMetadata := primaryMetadata
	staleMetadata.LastModifiedMillis -= 60_000

	mustWrite(t, secondaryAFS, "/contested.txt", "secondary-a-wins")
	manager.handleTargetChanges(secondaryA.ID(), []core.FileChangeInfo{
		{
			Path:           "/contested.txt",
			ChangeType:     core.ChangeModify,
			SourceTargetID: secondaryA.ID(),
			Metadata:       staleMetadata,
		},
	})
	if manager.GetState() != core.ManagerStateConflict {
		t.Fatalf("setup: expected conflict, got %v", manager.GetState())
	}

	if err := manager.ConfirmPrimarySync(); err != nil {
		t.Fatalf("ConfirmPrimarySync: %v", err)
	}
	if manager.GetState() != core.ManagerStateReady {
		t.Fatalf("expected ready after confirm, got %v", manager.GetState())
	}

	content, err := primaryFS.ReadFile("/contested.txt")
	if err != nil {
		t.Fatalf("ReadFile(primary): %v", err)
	}
	if string(content) != "secondary-a-wins" {
		t.Errorf("primary content = %q, want secondary-a-wins", content)
	}

	bContent, err := secondaryBFS.ReadFile("/contested.txt")
	if err != nil {
		t.Fatalf("ReadFile(secondary-b): %v", err)
	}
	if string(bContent) != "secondary-a-wins" {
		t.Errorf("secondary-b should be reinitialized from the updated primary, got %q", bContent)
	}
}

func TestPartitionBatchesSplitsIntoCeilingSizedBatches(t *testing.T) {
	changes := make([]core.FileChangeInfo, 15)
	for i := range changes {
		changes[i] = core.FileChangeInfo{Path: fmt.Sprintf("/f%d.txt", i)}
	}

	batches := partitionBatches(changes, 10)

	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2 (ceil(15/10))", len(batches))
	}
	if len(batches[0]) != 10 {
		t.Errorf("len(batches[0]) = %d, want 10", len(batches[0]))
	}
	if len(batches[1]) != 5 {
		t.Errorf("len(batches[1]) = %d, want 5", len(batches[1]))
	}
	for i, change := range append(append([]core.FileChangeInfo{}, batches[0]...), batches[1]...) {
		want := fmt.Sprintf("/f%d.txt", i)
		if change.Path != want {
			t.Errorf("batch order[%d] = %q, want %q", i, change.Path, want)
		}
	}
}

func TestPartitionBatchesFallsBackToDefaultSize(t *testing.T) {
	changes := make([]core.FileChangeInfo, DefaultMaxBatchSize+1)
	batches := partitionBatches(changes, 0)
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2 when size<=0 falls back to DefaultMaxBatchSize=%d", len(batches), DefaultMaxBatchSize)
	}
}

func TestBatchFailureHaltsSubsequentBatchesForDestination(t *testing.T) {
	manager := NewManager(ManagerConfig{MaxBatchSize: 1}, nil)
	primary, primaryFS := newMemTarget(t, "primary", RolePrimary, true)
	if err := manager.RegisterTarget(primary, RolePrimary); err != nil {
		t.Fatalf("RegisterTarget(primary): %v", err)
	}
	secondary, secondaryFS := newMemTarget(t, "secondary", RoleSecondary, false)
	if err := manager.RegisterTarget(secondary, RoleSecondary); err != nil {
		t.Fatalf("RegisterTarget(secondary): %v", err)
	}
	if err := manager.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	mustWrite(t, primaryFS, "/b.txt", "b-content")
	mustWrite(t, primaryFS, "/c.txt", "c-content")

	// The first change references a path that no longer exists on the
	// primary, so fetching its content fails and its batch fails. With
	// MaxBatchSize=1 each change is its own batch, so the two changes
	// that follow should never even be attempted.
	changes := []core.FileChangeInfo{
		{Path: "/missing.txt", ChangeType: core.ChangeModify, Metadata: filesystem.Metadata{Kind: filesystem.KindFile}},
		{Path: "/b.txt", ChangeType: core.ChangeCreate, Metadata: mustMetadata(t, primaryFS, "/b.txt")},
		{Path: "/c.txt", ChangeType: core.ChangeCreate, Metadata: mustMetadata(t, primaryFS, "/c.txt")},
	}
	manager.handleTargetChanges(primary.ID(), changes)

	if exists, _ := secondaryFS.Exists("/b.txt"); exists {
		t.Error("batch 2 should never have run once batch 1 failed")
	}
	if exists, _ := secondaryFS.Exists("/c.txt"); exists {
		t.Error("batch 3 should never have run once batch 1 failed")
	}
}

func mustMetadata(t *testing.T, fs *memfs.FileSystem, path string) filesystem.Metadata {
	t.Helper()
	metadata, err := fs.GetMetadata(path)
	if err != nil {
		t.Fatalf("GetMetadata(%s): %v", path, err)
	}
	return metadata
}
