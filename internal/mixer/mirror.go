// Package mixer holds one atomically-replaceable MixerSnapshot per
// session (spec.md §4.4). Reads never block a concurrent replace: a
// reader takes a reference to the current snapshot via an atomic
// pointer load and observes a consistent view for as long as it holds
// that reference; writers install a new snapshot with an atomic
// pointer store. This mirrors a common atomic-swap idiom for
// hot-path/cold-write state, adapted here to a plain in-memory
// pointer since no persistence is required: the mixer tree is never
// a source of truth across process restarts.
package mixer

import (
	"sync/atomic"

	"github.com/boristopalov/abby/internal/model"
)

// Mirror holds the current MixerSnapshot for one session.
type Mirror struct {
	snapshot atomic.Pointer[model.MixerSnapshot]
}

// New returns an empty Mirror; Replace must be called before Snapshot
// returns anything useful.
func New() *Mirror {
	return &Mirror{}
}

// Snapshot returns the current MixerSnapshot. The zero value (no
// tracks) is returned if Replace has never been called.
func (m *Mirror) Snapshot() model.MixerSnapshot {
	p := m.snapshot.Load()
	if p == nil {
		return model.MixerSnapshot{}
	}
	return *p
}

// Ready reports whether a snapshot has ever been installed.
func (m *Mirror) Ready() bool {
	return m.snapshot.Load() != nil
}

// Replace atomically installs a new snapshot. Concurrent readers that
// already hold a reference to the old snapshot continue to see it;
// subsequent Snapshot calls see the new one. There is no partial
// update: a failed reindex simply never calls Replace, leaving the
// prior snapshot intact (spec.md §4.4).
func (m *Mirror) Replace(snap model.MixerSnapshot) {
	m.snapshot.Store(&snap)
}

// Track looks up a track by index in the current snapshot.
func (m *Mirror) Track(index int) (model.Track, bool) {
	snap := m.Snapshot()
	return snap.Track(index)
}

// Device looks up a device by ref in the current snapshot.
func (m *Mirror) Device(ref model.DeviceRef) (model.Device, bool) {
	snap := m.Snapshot()
	return snap.Device(ref)
}

// Parameter looks up a parameter by ref in the current snapshot.
func (m *Mirror) Parameter(ref model.ParameterRef) (model.Parameter, bool) {
	snap := m.Snapshot()
	return snap.Parameter(ref)
}
