package memfs

import (
	"testing"
	"time"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	return New(hashing.AlgorithmSHA256)
}

func TestWriteReadFile(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.WriteFile("/a.txt", []byte("hello"), true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	content, err := fs.ReadFile("/a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("ReadFile = %q, want hello", content)
	}
}

func TestReadFileNotFound(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.ReadFile("/missing.txt"); err == nil {
		t.Error("expected error reading missing file")
	}
}

func TestWriteFileRequiresParent(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.WriteFile("/missing-dir/a.txt", []byte("x"), true); err == nil {
		t.Error("expected error writing under a missing directory")
	}
}

func TestCreateDirectoryRecursive(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.CreateDirectory("/a/b/c", filesystem.CreateDirectoryOptions{Recursive: true}, true); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	exists, err := fs.Exists("/a/b")
	if err != nil || !exists {
		t.Errorf("expected intermediate directory /a/b to exist")
	}
}

func TestCreateDirectoryAlreadyExists(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.CreateDirectory("/a", filesystem.CreateDirectoryOptions{}, true); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if err := fs.CreateDirectory("/a", filesystem.CreateDirectoryOptions{}, true); err == nil {
		t.Error("expected error creating an already-existing directory non-recursively")
	}
	if err := fs.CreateDirectory("/a", filesystem.CreateDirectoryOptions{Recursive: true}, true); err != nil {
		t.Errorf("recursive re-create of existing directory should succeed: %v", err)
	}
}

func TestDeleteItemRecursive(t *testing.T) {
	fs := newTestFS(t)
	mustMkdirAll(t, fs, "/a/b")
	if err := fs.WriteFile("/a/b/file.txt", []byte("x"), true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := fs.DeleteItem("/a", filesystem.DeleteOptions{}, true); err == nil {
		t.Error("expected non-recursive delete of non-empty directory to fail")
	}
	if err := fs.DeleteItem("/a", filesystem.DeleteOptions{Recursive: true}, true); err != nil {
		t.Fatalf("recursive DeleteItem: %v", err)
	}
	if exists, _ := fs.Exists("/a/b/file.txt"); exists {
		t.Error("descendant should have been deleted")
	}
	if exists, _ := fs.Exists("/a"); exists {
		t.Error("directory itself should have been deleted")
	}
}

func TestListDirectoryOrder(t *testing.T) {
	fs := newTestFS(t)
	for _, name := range []string{"/zebra.txt", "/apple.txt", "/mango.txt"} {
		if err := fs.WriteFile(name, []byte("x"), true); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}

	items, err := fs.ListDirectory("/")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Path != "/apple.txt" || items[1].Path != "/mango.txt" || items[2].Path != "/zebra.txt" {
		t.Errorf("unexpected order: %v", items)
	}
}

func TestGetMetadataComputesHash(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.WriteFile("/a.txt", []byte("hello"), true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	metadata, err := fs.GetMetadata("/a.txt")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	want := hashing.AlgorithmSHA256.Sum([]byte("hello"))
	if metadata.ContentHash != want {
		t.Errorf("ContentHash = %q, want %q", metadata.ContentHash, want)
	}
	if metadata.SizeBytes != 5 {
		t.Errorf("SizeBytes = %d, want 5", metadata.SizeBytes)
	}
}

func TestGetFileContentStream(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.WriteFile("/a.txt", []byte("hello world"), true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	stream, err := fs.GetFileContent("/a.txt")
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	defer stream.Close()

	content, err := filesystem.Drain(stream.Reader)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if string(content) != "hello world" {
		t.Errorf("drained content = %q, want %q", content, "hello world")
	}
}

func TestLockAdmitsOnlySyncWritesWhenLockedInSyncMode(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Lock(time.Minute, "test", filesystem.LockModeSync); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer fs.ForceUnlock()

	if err := fs.WriteFile("/a.txt", []byte("x"), false); err == nil {
		t.Error("non-sync write should be rejected while sync-locked")
	}
	if err := fs.WriteFile("/a.txt", []byte("x"), true); err != nil {
		t.Errorf("sync write should be admitted while sync-locked: %v", err)
	}
}

func TestLockRejectsAllWritesInExternalMode(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Lock(time.Minute, "test", filesystem.LockModeExternal); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer fs.ForceUnlock()

	if err := fs.WriteFile("/a.txt", []byte("x"), true); err == nil {
		t.Error("sync write should be rejected while externally locked")
	}
}

func TestSubstrateKind(t *testing.T) {
	fs := newTestFS(t)
	if fs.SubstrateKind() != filesystem.SubstrateKindMemory {
		t.Errorf("SubstrateKind = %q, want %q", fs.SubstrateKind(), filesystem.SubstrateKindMemory)
	}
}

func mustMkdirAll(t *testing.T, fs *FileSystem, path string) {
	t.Helper()
	if err := fs.CreateDirectory(path, filesystem.CreateDirectoryOptions{Recursive: true}, true); err != nil {
		t.Fatalf("CreateDirectory(%s): %v", path, err)
	}
}
