// Package memfs implements an in-memory filesystem.FileSystem. It serves
// two purposes in this repository: it is the engine's worked example of
// the "sandboxed in-process file system" substrate named in spec.md §1,
// and it is the fixture substrate used throughout the test suite for the
// synchronization core, since it requires no real disk I/O and can be
// inspected directly by tests.
package memfs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

// node is a single entry in the in-memory tree.
type node struct {
	kind         filesystem.Kind
	content      []byte
	lastModified time.Time
}

// FileSystem is an in-memory, single-process implementation of
// filesystem.FileSystem. The zero value is not usable; construct with
// New.
type FileSystem struct {
	lock *filesystem.Lock

	mu        sync.Mutex
	nodes     map[string]*node
	algorithm hashing.Algorithm
	state     filesystem.State
	lastOp    string
}

// New creates an empty, ready in-memory filesystem rooted at "/".
func New(algorithm hashing.Algorithm) *FileSystem {
	fs := &FileSystem{
		lock:      filesystem.NewLock(),
		nodes:     make(map[string]*node),
		algorithm: algorithm,
		state:     filesystem.StateReady,
	}
	fs.nodes["/"] = &node{kind: filesystem.KindDirectory, lastModified: time.Now()}
	return fs
}

// recordOp tracks the most recently attempted operation name for
// diagnostic purposes in GetState. It does not change the filesystem's
// state.
func (f *FileSystem) recordOp(name string) {
	f.lastOp = name
}

// ReadFile implements filesystem.FileSystem.ReadFile.
func (f *FileSystem) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("ReadFile")

	path = filesystem.Normalize(path)
	n, ok := f.nodes[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, filesystem.ErrNotFound)
	}
	if n.kind == filesystem.KindDirectory {
		return nil, fmt.Errorf("read %s: %w", path, filesystem.ErrInvalidType)
	}

	result := make([]byte, len(n.content))
	copy(result, n.content)
	return result, nil
}

// WriteFile implements filesystem.FileSystem.WriteFile.
func (f *FileSystem) WriteFile(path string, content []byte, isSyncOp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("WriteFile")

	if err := f.lock.Admit(isSyncOp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	path = filesystem.Normalize(path)
	parent := filesystem.Parent(path)
	if parentNode, ok := f.nodes[parent]; !ok || parentNode.kind != filesystem.KindDirectory {
		return fmt.Errorf("write %s: %w", path, filesystem.ErrNotFound)
	}
	if existing, ok := f.nodes[path]; ok && existing.kind == filesystem.KindDirectory {
		return fmt.Errorf("write %s: %w", path, filesystem.ErrInvalidType)
	}

	stored := make([]byte, len(content))
	copy(stored, content)
	f.nodes[path] = &node{kind: filesystem.KindFile, content: stored, lastModified: time.Now()}
	return nil
}

// Exists implements filesystem.FileSystem.Exists.
func (f *FileSystem) Exists(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("Exists")

	_, ok := f.nodes[filesystem.Normalize(path)]
	return ok, nil
}

// CreateDirectory implements filesystem.FileSystem.CreateDirectory.
func (f *FileSystem) CreateDirectory(path string, options filesystem.CreateDirectoryOptions, isSyncOp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("CreateDirectory")

	if err := f.lock.Admit(isSyncOp); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}

	path = filesystem.Normalize(path)
	if existing, ok := f.nodes[path]; ok {
		if !options.Recursive {
			return fmt.Errorf("mkdir %s: %w", path, filesystem.ErrAlreadyExists)
		}
		if existing.kind != filesystem.KindDirectory {
			return fmt.Errorf("mkdir %s: %w", path, filesystem.ErrInvalidType)
		}
		return nil
	}

	parent := filesystem.Parent(path)
	if _, ok := f.nodes[parent]; !ok {
		if !options.Recursive {
			return fmt.Errorf("mkdir %s: %w", path, filesystem.ErrNotFound)
		}
		if err := f.createDirectoryRecursiveLocked(parent); err != nil {
			return err
		}
	}

	f.nodes[path] = &node{kind: filesystem.KindDirectory, lastModified: time.Now()}
	return nil
}

// createDirectoryRecursiveLocked creates path and any missing parents.
// The caller must hold f.mu.
func (f *FileSystem) createDirectoryRecursiveLocked(path string) error {
	if path == "/" {
		return nil
	}
	if _, ok := f.nodes[path]; ok {
		return nil
	}
	if err := f.createDirectoryRecursiveLocked(filesystem.Parent(path)); err != nil {
		return err
	}
	f.nodes[path] = &node{kind: filesystem.KindDirectory, lastModified: time.Now()}
	return nil
}

// DeleteItem implements filesystem.FileSystem.DeleteItem.
func (f *FileSystem) DeleteItem(path string, options filesystem.DeleteOptions, isSyncOp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("DeleteItem")

	if err := f.lock.Admit(isSyncOp); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	path = filesystem.Normalize(path)
	n, ok := f.nodes[path]
	if !ok {
		return fmt.Errorf("delete %s: %w", path, filesystem.ErrNotFound)
	}

	if n.kind == filesystem.KindDirectory {
		children := f.childrenLocked(path)
		if len(children) > 0 && !options.Recursive {
			return fmt.Errorf("delete %s: %w", path, filesystem.ErrInvalidOperation)
		}
		// Depth-first: delete descendants before the directory itself.
		// Sort descending by path length so children are removed before
		// their parents regardless of map iteration order.
		all := f.descendantsLocked(path)
		sort.Slice(all, func(i, j int) bool { return len(all[i]) > len(all[j]) })
		for _, descendant := range all {
			delete(f.nodes, descendant)
		}
	}

	delete(f.nodes, path)
	return nil
}

// childrenLocked returns the immediate children of a directory path. The
// caller must hold f.mu.
func (f *FileSystem) childrenLocked(path string) []string {
	var children []string
	for candidate := range f.nodes {
		if candidate != path && filesystem.Parent(candidate) == path {
			children = append(children, candidate)
		}
	}
	return children
}

// descendantsLocked returns every path nested beneath (but not
// including) path. The caller must hold f.mu.
func (f *FileSystem) descendantsLocked(path string) []string {
	prefix := path
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	var result []string
	for candidate := range f.nodes {
		if candidate == path {
			continue
		}
		if path == "/" || len(candidate) > len(prefix) {
			if len(candidate) >= len(prefix) && candidate[:len(prefix)] == prefix {
				result = append(result, candidate)
			}
		}
	}
	return result
}

// ListDirectory implements filesystem.FileSystem.ListDirectory.
func (f *FileSystem) ListDirectory(path string) ([]filesystem.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("ListDirectory")

	path = filesystem.Normalize(path)
	n, ok := f.nodes[path]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", path, filesystem.ErrNotFound)
	}
	if n.kind != filesystem.KindDirectory {
		return nil, fmt.Errorf("list %s: %w", path, filesystem.ErrInvalidType)
	}

	children := f.childrenLocked(path)
	sort.Slice(children, func(i, j int) bool { return filesystem.Less(children[i], children[j]) })

	items := make([]filesystem.Item, 0, len(children))
	for _, child := range children {
		childNode := f.nodes[child]
		item := filesystem.Item{
			Path:               child,
			Kind:               childNode.kind,
			LastModifiedMillis: childNode.lastModified.UnixMilli(),
		}
		if childNode.kind == filesystem.KindFile {
			size := int64(len(childNode.content))
			item.SizeBytes = &size
		}
		items = append(items, item)
	}
	return items, nil
}

// GetMetadata implements filesystem.FileSystem.GetMetadata.
func (f *FileSystem) GetMetadata(path string) (filesystem.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("GetMetadata")

	path = filesystem.Normalize(path)
	n, ok := f.nodes[path]
	if !ok {
		return filesystem.Metadata{}, fmt.Errorf("stat %s: %w", path, filesystem.ErrNotFound)
	}

	metadata := filesystem.Metadata{
		Path:               path,
		Kind:               n.kind,
		LastModifiedMillis: n.lastModified.UnixMilli(),
	}
	if n.kind == filesystem.KindFile {
		metadata.ContentHash = f.algorithm.Sum(n.content)
		metadata.SizeBytes = int64(len(n.content))
	}
	return metadata, nil
}

// GetFileContent implements filesystem.FileSystem.GetFileContent.
func (f *FileSystem) GetFileContent(path string) (*filesystem.ContentStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("GetFileContent")

	path = filesystem.Normalize(path)
	n, ok := f.nodes[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, filesystem.ErrNotFound)
	}
	if n.kind == filesystem.KindDirectory {
		return nil, fmt.Errorf("read %s: %w", path, filesystem.ErrInvalidType)
	}

	content := make([]byte, len(n.content))
	copy(content, n.content)
	metadata := filesystem.Metadata{
		Path:               path,
		Kind:               filesystem.KindFile,
		ContentHash:        f.algorithm.Sum(content),
		SizeBytes:          int64(len(content)),
		LastModifiedMillis: n.lastModified.UnixMilli(),
	}

	chunk := filesystem.Chunk{
		Bytes:       content,
		ChunkIndex:  0,
		TotalChunks: 1,
		ChunkHash:   metadata.ContentHash,
	}
	reader := filesystem.NewSliceChunkReader([]filesystem.Chunk{chunk})
	return filesystem.NewContentStream(metadata, reader, nil), nil
}

// Lock implements filesystem.FileSystem.Lock.
func (f *FileSystem) Lock(timeout time.Duration, reason string, mode filesystem.LockMode) error {
	return f.lock.Acquire(timeout, reason, mode)
}

// ForceUnlock implements filesystem.FileSystem.ForceUnlock.
func (f *FileSystem) ForceUnlock() {
	f.lock.ForceUnlock()
}

// SubstrateKind implements filesystem.SubstrateIdentifiable.
func (f *FileSystem) SubstrateKind() string {
	return filesystem.SubstrateKindMemory
}

// GetState implements filesystem.FileSystem.GetState.
func (f *FileSystem) GetState() filesystem.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filesystem.Snapshot{
		CurrentState:  f.state,
		LockState:     f.lock.State(),
		LastOperation: f.lastOp,
	}
}
