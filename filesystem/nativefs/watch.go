package nativefs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mrsimpson/piddie-sub002/filesystem"
)

// Watch implements filesystem.EventSource. It recursively watches the
// root (fsnotify only watches individual directories, so new
// directories are added to the watch as they're created) and reports
// every raw notification as a filesystem.Event; the change detector is
// responsible for turning these into classified FileChangeInfo entries.
func (f *FileSystem) Watch() (<-chan filesystem.Event, func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	if err := addRecursive(watcher, f.root); err != nil {
		watcher.Close()
		return nil, nil, err
	}

	events := make(chan filesystem.Event, 64)
	var stopOnce sync.Once
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						addRecursive(watcher, event.Name)
					}
				}
				relative, err := filepath.Rel(f.root, event.Name)
				if err != nil {
					continue
				}
				select {
				case events <- filesystem.Event{Path: filesystem.Normalize(filepath.ToSlash(relative))}:
				case <-done:
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	stop := func() error {
		stopOnce.Do(func() { close(done) })
		return watcher.Close()
	}
	return events, stop, nil
}

// addRecursive adds watches for root and every directory beneath it.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
