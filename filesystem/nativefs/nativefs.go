// Package nativefs implements filesystem.FileSystem over a real
// directory tree on the host operating system. It is the engine's
// worked example of the "native host file system" substrate named in
// spec.md §1.
package nativefs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

// lockFileName is the sentinel file used for the OS-level advisory lock
// taken alongside the in-process lock when operating in external mode.
const lockFileName = ".piddie-sync.lock"

// FileSystem is a filesystem.FileSystem backed by a directory on disk.
type FileSystem struct {
	lock *filesystem.Lock

	mu        sync.Mutex
	root      string
	algorithm hashing.Algorithm
	osLock    *osLock
	lastOp    string
}

// New creates a FileSystem rooted at root, which must already exist and
// be a directory.
func New(root string, algorithm hashing.Algorithm) (*FileSystem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to stat root")
	}
	if !info.IsDir() {
		return nil, errors.New("root is not a directory")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve absolute root")
	}
	return &FileSystem{
		lock:      filesystem.NewLock(),
		root:      absRoot,
		algorithm: algorithm,
	}, nil
}

// resolve converts a normalized engine path into an absolute on-disk
// path rooted at f.root.
func (f *FileSystem) resolve(path string) string {
	path = filesystem.Normalize(path)
	if path == "/" {
		return f.root
	}
	return filepath.Join(f.root, filepath.FromSlash(path))
}

func (f *FileSystem) recordOp(name string) {
	f.lastOp = name
}

// ReadFile implements filesystem.FileSystem.ReadFile.
func (f *FileSystem) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("ReadFile")

	resolved := f.resolve(path)
	info, err := os.Stat(resolved)
	if classified := classifyStatErr(err); classified != nil {
		return nil, errors.Wrapf(classified, "read %s", path)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(filesystem.ErrInvalidType, "read %s", path)
	}

	content, err := ioutil.ReadFile(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return content, nil
}

// WriteFile implements filesystem.FileSystem.WriteFile.
func (f *FileSystem) WriteFile(path string, content []byte, isSyncOp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("WriteFile")

	if err := f.lock.Admit(isSyncOp); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}

	resolved := f.resolve(path)
	parent := filepath.Dir(resolved)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return errors.Wrapf(filesystem.ErrNotFound, "write %s", path)
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return errors.Wrapf(filesystem.ErrInvalidType, "write %s", path)
	}

	// Write atomically: write to a temporary sibling then rename over
	// the destination, so a reader never observes a partially-written
	// file.
	tmp, err := ioutil.TempFile(parent, ".piddie-tmp-*")
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := os.Rename(tmpPath, resolved); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Exists implements filesystem.FileSystem.Exists.
func (f *FileSystem) Exists(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("Exists")

	_, err := os.Stat(f.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", path)
}

// CreateDirectory implements filesystem.FileSystem.CreateDirectory.
func (f *FileSystem) CreateDirectory(path string, options filesystem.CreateDirectoryOptions, isSyncOp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("CreateDirectory")

	if err := f.lock.Admit(isSyncOp); err != nil {
		return errors.Wrapf(err, "mkdir %s", path)
	}

	resolved := f.resolve(path)
	if info, err := os.Stat(resolved); err == nil {
		if !options.Recursive {
			return errors.Wrapf(filesystem.ErrAlreadyExists, "mkdir %s", path)
		}
		if !info.IsDir() {
			return errors.Wrapf(filesystem.ErrInvalidType, "mkdir %s", path)
		}
		return nil
	}

	if options.Recursive {
		if err := os.MkdirAll(resolved, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", path)
		}
		return nil
	}

	parent := filepath.Dir(resolved)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return errors.Wrapf(filesystem.ErrNotFound, "mkdir %s", path)
	}
	if err := os.Mkdir(resolved, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", path)
	}
	return nil
}

// DeleteItem implements filesystem.FileSystem.DeleteItem.
func (f *FileSystem) DeleteItem(path string, options filesystem.DeleteOptions, isSyncOp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("DeleteItem")

	if err := f.lock.Admit(isSyncOp); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}

	resolved := f.resolve(path)
	info, err := os.Stat(resolved)
	if classified := classifyStatErr(err); classified != nil {
		return errors.Wrapf(classified, "delete %s", path)
	}

	if info.IsDir() {
		entries, err := ioutil.ReadDir(resolved)
		if err != nil {
			return errors.Wrapf(err, "delete %s", path)
		}
		if len(entries) > 0 && !options.Recursive {
			return errors.Wrapf(filesystem.ErrInvalidOperation, "delete %s", path)
		}
		if err := os.RemoveAll(resolved); err != nil {
			return errors.Wrapf(err, "delete %s", path)
		}
		return nil
	}

	if err := os.Remove(resolved); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	return nil
}

// ListDirectory implements filesystem.FileSystem.ListDirectory.
func (f *FileSystem) ListDirectory(path string) ([]filesystem.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("ListDirectory")

	resolved := f.resolve(path)
	info, err := os.Stat(resolved)
	if classified := classifyStatErr(err); classified != nil {
		return nil, errors.Wrapf(classified, "list %s", path)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(filesystem.ErrInvalidType, "list %s", path)
	}

	entries, err := ioutil.ReadDir(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	normalizedPath := filesystem.Normalize(path)
	items := make([]filesystem.Item, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == lockFileName {
			continue
		}
		childPath := filesystem.Join(normalizedPath, entry.Name())
		kind := filesystem.KindFile
		if entry.IsDir() {
			kind = filesystem.KindDirectory
		}
		item := filesystem.Item{
			Path:               childPath,
			Kind:               kind,
			LastModifiedMillis: entry.ModTime().UnixMilli(),
		}
		if !entry.IsDir() {
			size := entry.Size()
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

	resolved := f.resolve(path)
	info, err := os.Stat(resolved)
	if classified := classifyStatErr(err); classified != nil {
		return filesystem.Metadata{}, errors.Wrapf(classified, "stat %s", path)
	}

	metadata := filesystem.Metadata{
		Path:               filesystem.Normalize(path),
		LastModifiedMillis: info.ModTime().UnixMilli(),
	}
	if info.IsDir() {
		metadata.Kind = filesystem.KindDirectory
		return metadata, nil
	}

	metadata.Kind = filesystem.KindFile
	metadata.SizeBytes = info.Size()
	content, err := ioutil.ReadFile(resolved)
	if err != nil {
		return filesystem.Metadata{}, errors.Wrapf(err, "stat %s", path)
	}
	metadata.ContentHash = f.algorithm.Sum(content)
	return metadata, nil
}

// GetFileContent implements filesystem.FileSystem.GetFileContent.
func (f *FileSystem) GetFileContent(path string) (*filesystem.ContentStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordOp("GetFileContent")

	resolved := f.resolve(path)
	info, err := os.Stat(resolved)
	if classified := classifyStatErr(err); classified != nil {
		return nil, errors.Wrapf(classified, "read %s", path)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(filesystem.ErrInvalidType, "read %s", path)
	}

	handle, err := os.Open(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	content, err := ioutil.ReadFile(resolved)
	if err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "read %s", path)
	}

	metadata := filesystem.Metadata{
		Path:               filesystem.Normalize(path),
		Kind:               filesystem.KindFile,
		ContentHash:        f.algorithm.Sum(content),
		SizeBytes:          int64(len(content)),
		LastModifiedMillis: info.ModTime().UnixMilli(),
	}

	const chunkSize = 64 * 1024
	var chunks []filesystem.Chunk
	total := (len(content) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}
	for i := 0; i*chunkSize < len(content) || i == 0; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(content) {
			end = len(content)
		}
		piece := content[start:end]
		chunks = append(chunks, filesystem.Chunk{
			Bytes:       piece,
			ChunkIndex:  i,
			TotalChunks: total,
			ChunkHash:   f.algorithm.Sum(piece),
		})
		if end == len(content) {
			break
		}
	}

	reader := filesystem.NewSliceChunkReader(chunks)
	return filesystem.NewContentStream(metadata, reader, closerFunc(handle.Close)), nil
}

// closerFunc adapts a func() error to io.Closer.
type closerFunc func() error

// Close implements io.Closer.
func (c closerFunc) Close() error { return c() }

// Lock implements filesystem.FileSystem.Lock.
func (f *FileSystem) Lock(timeout time.Duration, reason string, mode filesystem.LockMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.lock.Acquire(timeout, reason, mode); err != nil {
		return err
	}

	if mode == filesystem.LockModeExternal {
		osLock, err := acquireOSLock(filepath.Join(f.root, lockFileName))
		if err != nil {
			f.lock.ForceUnlock()
			return errors.Wrap(err, "unable to acquire OS-level lock")
		}
		f.osLock = osLock
	}
	return nil
}

// ForceUnlock implements filesystem.FileSystem.ForceUnlock.
func (f *FileSystem) ForceUnlock() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lock.ForceUnlock()
	if f.osLock != nil {
		f.osLock.release()
		f.osLock = nil
	}
}

// SubstrateKind implements filesystem.SubstrateIdentifiable.
func (f *FileSystem) SubstrateKind() string {
	return filesystem.SubstrateKindNative
}

// GetState implements filesystem.FileSystem.GetState.
func (f *FileSystem) GetState() filesystem.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filesystem.Snapshot{
		CurrentState:  filesystem.StateReady,
		LockState:     f.lock.State(),
		LastOperation: f.lastOp,
	}
}

// classifyStatErr maps an os.Stat error to the engine's sentinel errors.
func classifyStatErr(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return filesystem.ErrNotFound
	}
	if os.IsPermission(err) {
		return filesystem.ErrPermissionDenied
	}
	return err
}
