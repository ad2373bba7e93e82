package synchronization

import (
	"sync"
	"time"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/internal/logging"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

// pollInterval is the cooperative tick rate at which a changeDetector
// re-snapshots its target's filesystem, per spec.md §4.3.
const pollInterval = 1 * time.Second

// debounceWindow coalesces bursts of native filesystem events (several
// writes to the same file in quick succession, a directory tree being
// extracted from an archive) into a single snapshot pass, rather than
// triggering a full re-scan per event.
const debounceWindow = 100 * time.Millisecond

// changeDetector polls a SyncTarget's filesystem on a fixed interval,
// diffing against the target's last-known baseline and reporting
// changes through a callback. Where the underlying FileSystem also
// exposes native events (via filesystem.EventSource), those events are
// debounced and trigger an extra tick without waiting for the interval;
// the timed ticks still run, and the snapshot/diff itself is always
// authoritative.
type changeDetector struct {
	target   *SyncTarget
	callback ChangeCallback
	logger   *logging.Logger

	done chan struct{}
	wg   sync.WaitGroup

	dirty   chan struct{}
	dirtyMu sync.Mutex
}

// newChangeDetector creates a detector for target. callback is invoked
// with any non-empty batch of changes found on a tick.
func newChangeDetector(target *SyncTarget, callback ChangeCallback, logger *logging.Logger) *changeDetector {
	return &changeDetector{
		target:   target,
		callback: callback,
		logger:   logger,
		done:     make(chan struct{}),
		dirty:    make(chan struct{}, 1),
	}
}

// start launches the detector's polling goroutine, and a second
// goroutine relaying debounced native events into the dirty signal if
// the target's filesystem supports them.
func (d *changeDetector) start() {
	if source, ok := d.target.fs.(filesystem.EventSource); ok {
		events, stopWatch, err := source.Watch()
		if err != nil {
			d.logf("native watch unavailable for target %s, falling back to polling only: %v", d.target.id, err)
		} else {
			d.wg.Add(1)
			go d.relayEvents(events, stopWatch)
		}
	}

	d.wg.Add(1)
	go d.loop()
}

// stop halts the detector and waits for its goroutines to exit.
func (d *changeDetector) stop() {
	close(d.done)
	d.wg.Wait()
}

// markDirty records that a native event arrived, without blocking if a
// signal is already pending (coalescing is the point).
func (d *changeDetector) markDirty() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

// relayEvents debounces native filesystem events into markDirty calls,
// and closes over stopWatch so the underlying watch is always released
// when the detector stops.
func (d *changeDetector) relayEvents(events <-chan filesystem.Event, stopWatch func() error) {
	defer d.wg.Done()
	defer stopWatch()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-d.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			d.markDirty()
			timer = nil
			timerCh = nil
		}
	}
}

// loop is the detector's main polling goroutine. On every tick it
// takes a fresh snapshot, diffs it against the target's baseline, and
// invokes the callback with anything changed. A snapshot failure is
// logged and skipped; the next tick always runs regardless, per
// spec.md §9 ("detector failures are isolated per tick").
func (d *changeDetector) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.tick()
		case <-d.dirty:
			// A native event fired: snapshot now instead of waiting out
			// the rest of the poll interval, then resume the normal
			// cadence from here.
			d.tick()
			ticker.Reset(pollInterval)
		}
	}
}

// tick snapshots the target's filesystem and reports any changes found
// since the last tick. Per spec.md §4.3 step 4, the target's own lock
// is held for the entire duration of the tick once something may need
// reporting: this keeps a concurrent external write from racing the
// snapshot/diff/fan-out the way it would if the source's FileSystem
// stayed unlocked while its content streamed out to destinations via
// the callback. The lock is acquired via notifyIncomingChangesLocked
// (collecting) and the target then advances to syncing, mirroring the
// destination-side transitions ApplyFileChange already performs;
// finishCycle releases it again once the callback returns.
func (d *changeDetector) tick() {
	t := d.target

	t.mu.Lock()
	if t.status != core.TargetStatusIdle || t.initialSyncPending {
		t.mu.Unlock()
		return
	}
	if err := t.notifyIncomingChangesLocked(); err != nil {
		t.mu.Unlock()
		d.logf("target %s: failed to acquire lock for detection tick: %v", t.id, err)
		return
	}
	t.status = core.TargetStatusSyncing
	fs := t.fs
	ignorer := t.ignorer
	overlay := t.overlay
	baseline := t.baseline
	t.mu.Unlock()

	current, err := recursiveSnapshot(fs, "/", ignorer, overlay)
	if err != nil {
		d.logf("target %s: snapshot failed, will retry next tick: %v", t.id, err)
		t.finishCycle()
		return
	}

	changes := diff(baseline, current, t.id)

	t.mu.Lock()
	t.baseline = current
	t.mu.Unlock()

	if len(changes) == 0 {
		t.finishCycle()
		return
	}
	d.callback(t.id, changes)
	t.finishCycle()
}

func (d *changeDetector) logf(format string, args ...interface{}) {
	if d.logger == nil {
		return
	}
	d.logger.Debugf(format, args...)
}
