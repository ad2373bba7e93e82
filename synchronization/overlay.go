package synchronization

import "sync"

// originOverlay stores, per path, the last-modified timestamp that was
// present on the *source* of a sync-origin write applied to this
// target. Every read of a file's last-modified time (GetMetadata, the
// change detector's snapshot) consults the overlay first.
//
// Without this, a sync-origin write naturally gets stamped with the
// current wall-clock time by the underlying substrate. If that stamp
// were reported back to the manager, the very next detector tick would
// see a "changed" file that nothing local actually touched, looping
// the same change back toward its own source forever. Recording the
// origin's timestamp and replaying it here breaks that loop (invariant
// I5 in spec.md §3); see "Overlay of origin timestamps" in spec.md §9.
type originOverlay struct {
	mu      sync.Mutex
	entries map[string]int64
}

// newOriginOverlay creates an empty overlay.
func newOriginOverlay() *originOverlay {
	return &originOverlay{entries: make(map[string]int64)}
}

// record stores originLastModifiedMillis for path, overwriting any
// prior entry.
func (o *originOverlay) record(path string, originLastModifiedMillis int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[path] = originLastModifiedMillis
}

// get returns the overlaid timestamp for path, if any.
func (o *originOverlay) get(path string) (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	value, ok := o.entries[path]
	return value, ok
}

// forget removes any overlay entry for path, used when a path is
// deleted so a future recreation at that path isn't shadowed by a
// stale timestamp.
func (o *originOverlay) forget(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, path)
}
