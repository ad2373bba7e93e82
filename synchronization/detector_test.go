package synchronization

import (
	"testing"

	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

func TestTickSkipsWhenNotIdle(t *testing.T) {
	target, fs := newMemTarget(t, "primary", RolePrimary, true)
	mustWrite(t, fs, "/a.txt", "hello")

	var invoked bool
	detector := newChangeDetector(target, func(string, []core.FileChangeInfo) { invoked = true }, nil)

	target.mu.Lock()
	target.status = core.TargetStatusSyncing
	target.mu.Unlock()

	detector.tick()

	if invoked {
		t.Error("tick should not snapshot while the target is not idle")
	}
}

func TestTickSkipsWhenInitialSyncPending(t *testing.T) {
	target, fs := newMemTarget(t, "secondary", RoleSecondary, false)
	mustWrite(t, fs, "/a.txt", "hello")

	var invoked bool
	detector := newChangeDetector(target, func(string, []core.FileChangeInfo) { invoked = true }, nil)

	if !target.initialSyncPending {
		t.Fatal("expected initialSyncPending to be true for a freshly initialized secondary")
	}
	detector.tick()

	if invoked {
		t.Error("tick should not snapshot while the initial sync is still pending")
	}
}

func TestTickDetectsChangesAndUpdatesBaseline(t *testing.T) {
	target, fs := newMemTarget(t, "primary", RolePrimary, true)

	var gotID string
	var gotChanges []core.FileChangeInfo
	detector := newChangeDetector(target, func(id string, changes []core.FileChangeInfo) {
		gotID = id
		gotChanges = changes
	}, nil)

	mustWrite(t, fs, "/new.txt", "content")
	detector.tick()

	if gotID != "primary" {
		t.Fatalf("callback target id = %q, want primary", gotID)
	}
	if len(gotChanges) != 1 || gotChanges[0].Path != "/new.txt" || gotChanges[0].ChangeType != core.ChangeCreate {
		t.Fatalf("unexpected changes: %+v", gotChanges)
	}

	target.mu.Lock()
	_, stillPresent := target.baseline["/new.txt"]
	target.mu.Unlock()
	if !stillPresent {
		t.Error("baseline should be replaced with the current snapshot after a tick")
	}

	gotChanges = nil
	detector.tick()
	if len(gotChanges) != 0 {
		t.Errorf("a second tick with no further changes should not invoke the callback, got %+v", gotChanges)
	}
}

func TestTickHoldsLockAndSyncingStatusDuringCallback(t *testing.T) {
	target, fs := newMemTarget(t, "primary", RolePrimary, true)
	mustWrite(t, fs, "/new.txt", "content")

	var lockedDuringCallback bool
	var statusDuringCallback core.TargetStatus
	detector := newChangeDetector(target, func(string, []core.FileChangeInfo) {
		lockedDuringCallback = fs.GetState().LockState.Locked
		target.mu.Lock()
		statusDuringCallback = target.status
		target.mu.Unlock()
	}, nil)

	detector.tick()

	if !lockedDuringCallback {
		t.Error("target's filesystem should be locked while the callback runs")
	}
	if statusDuringCallback != core.TargetStatusSyncing {
		t.Errorf("status during callback = %v, want syncing", statusDuringCallback)
	}

	state := target.GetState()
	if state.Status != core.TargetStatusIdle {
		t.Errorf("status after tick = %v, want idle (lock should be released once the callback returns)", state.Status)
	}
	if fs.GetState().LockState.Locked {
		t.Error("filesystem should be unlocked again after tick completes")
	}
}
