package synchronization

import (
	"fmt"
	"sync"

	"github.com/mrsimpson/piddie-sub002/internal/logging"
)

// ProgressEventKind distinguishes the phases of a sync cycle reported
// to progress listeners, per spec.md §4.4 "Progress events".
type ProgressEventKind uint8

const (
	// ProgressSyncing reports per-file progression through a batch.
	ProgressSyncing ProgressEventKind = iota
	// ProgressStreaming reports per-chunk progression through a single
	// file's content.
	ProgressStreaming
	// ProgressCompleting reports the outcome of a batch applied to one
	// destination.
	ProgressCompleting
	// ProgressError reports a failure encountered during a cycle.
	ProgressError
)

// Phase identifies where in a cycle an error occurred.
type Phase uint8

const (
	// PhaseCollecting is the detector's snapshot/diff step.
	PhaseCollecting Phase = iota
	// PhaseStreaming is content retrieval from the source target.
	PhaseStreaming
	// PhaseApplying is the destination's applyFileChange call.
	PhaseApplying
)

// ProgressEvent is a single notification delivered to progress
// listeners. Only the fields relevant to Kind are populated; the rest
// are left at their zero value.
type ProgressEvent struct {
	Kind ProgressEventKind

	SourceTargetID string
	TargetID       string

	// ProgressSyncing fields.
	TotalFiles  int
	SyncedFiles int
	CurrentFile string

	// ProgressStreaming fields (CurrentFile is shared with syncing).
	ProcessedBytes int64
	TotalBytes     int64

	// ProgressCompleting fields.
	SuccessfulFiles int
	FailedFiles     int

	// ProgressError fields (CurrentFile is shared with syncing).
	Err   error
	Phase Phase
}

// ProgressListener receives progress events. A listener must not block
// for long periods, since it is invoked synchronously from the
// propagation path.
type ProgressListener func(ProgressEvent)

// progressRegistry is an append/remove list of listeners, invoked
// sequentially and resilient to any individual listener panicking or
// otherwise misbehaving, per spec.md §4.4 and §5 ("Shared resources").
type progressRegistry struct {
	mu        sync.Mutex
	listeners map[int]ProgressListener
	nextID    int
	logger    *logging.Logger
}

func newProgressRegistry(logger *logging.Logger) *progressRegistry {
	return &progressRegistry{listeners: make(map[int]ProgressListener), logger: logger}
}

// register adds a listener and returns an unregister function.
func (r *progressRegistry) register(listener ProgressListener) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = listener
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// emit invokes every registered listener with event. A listener that
// panics is recovered and logged; it does not prevent other listeners
// from running, per spec.md §4.4.
func (r *progressRegistry) emit(event ProgressEvent) {
	r.mu.Lock()
	snapshot := make([]ProgressListener, 0, len(r.listeners))
	for _, listener := range r.listeners {
		snapshot = append(snapshot, listener)
	}
	r.mu.Unlock()

	for _, listener := range snapshot {
		r.invoke(listener, event)
	}
}

func (r *progressRegistry) invoke(listener ProgressListener, event ProgressEvent) {
	defer func() {
		if recovered := recover(); recovered != nil && r.logger != nil {
			r.logger.Warn(fmt.Errorf("progress listener panicked: %v", recovered))
		}
	}()
	listener(event)
}
