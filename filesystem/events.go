package filesystem

// Event is a single raw filesystem notification as reported by a
// substrate that implements EventSource. It is a low-level signal only
// ("something changed near this path") — the change detector is
// responsible for re-scanning and classifying the actual create,
// modify, or delete that occurred.
type Event struct {
	// Path is the root-relative, normalized path the substrate reported
	// a change near.
	Path string
}

// EventSource is an optional capability a FileSystem substrate may
// implement to supply native change notifications, feeding the
// debounce buffer described in spec.md §4.3. Substrates that don't
// implement EventSource (or where native events are unavailable) fall
// back to the change detector's poll loop.
type EventSource interface {
	// Watch begins emitting Events on the returned channel for changes
	// anywhere under the filesystem's root. The returned stop function
	// must be called to release watch resources; it is safe to call
	// multiple times. The channel is closed after stop is called (or if
	// the watch fails internally).
	Watch() (events <-chan Event, stop func() error, err error)
}
