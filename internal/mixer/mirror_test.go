package mixer

import (
	"sync"
	"testing"

	"github.com/boristopalov/abby/internal/model"
)

func snapshotWith(names ...string) model.MixerSnapshot {
	tracks := make([]model.Track, len(names))
	for i, n := range names {
		tracks[i] = model.Track{Ref: model.TrackRef{TrackIndex: i}, Name: n}
	}
	return model.MixerSnapshot{Tracks: tracks}
}

func TestMirrorNotReadyUntilReplace(t *testing.T) {
	m := New()
	if m.Ready() {
		t.Fatal("Ready() = true before any Replace")
	}
	if len(m.Snapshot().Tracks) != 0 {
		t.Fatal("Snapshot() not empty before any Replace")
	}
}

func TestMirrorReplaceIsVisibleToSubsequentReads(t *testing.T) {
	m := New()
	m.Replace(snapshotWith("Drums", "Bass"))

	if !m.Ready() {
		t.Fatal("Ready() = false after Replace")
	}
	snap := m.Snapshot()
	if len(snap.Tracks) != 2 || snap.Tracks[0].Name != "Drums" {
		t.Errorf("Snapshot = %+v", snap)
	}
}

func TestMirrorReaderSeesConsistentSnapshotDuringConcurrentReplace(t *testing.T) {
	m := New()
	m.Replace(snapshotWith("A"))

	held := m.Snapshot() // reader takes a reference before the replace

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Replace(snapshotWith("B", "C"))
	}()
	wg.Wait()

	if len(held.Tracks) != 1 || held.Tracks[0].Name != "A" {
		t.Errorf("held reference mutated after replace: %+v", held)
	}
	if len(m.Snapshot().Tracks) != 2 {
		t.Errorf("Snapshot() after replace = %+v, want 2 tracks", m.Snapshot())
	}
}

func TestMirrorLookupsDelegateToSnapshot(t *testing.T) {
	m := New()
	snap := snapshotWith("Drums")
	snap.Tracks[0].Devices = []model.Device{{
		Ref:  model.DeviceRef{TrackIndex: 0, DeviceIndex: 0},
		Name: "Kit",
		Parameters: []model.Parameter{
			{Ref: model.ParameterRef{TrackIndex: 0, DeviceIndex: 0, ParameterIndex: 0}, Name: "Gain"},
		},
	}}
	m.Replace(snap)

	if _, ok := m.Track(0); !ok {
		t.Error("Track(0) not found")
	}
	if _, ok := m.Device(model.DeviceRef{TrackIndex: 0, DeviceIndex: 0}); !ok {
		t.Error("Device not found")
	}
	if _, ok := m.Parameter(model.ParameterRef{TrackIndex: 0, DeviceIndex: 0, ParameterIndex: 0}); !ok {
		t.Error("Parameter not found")
	}
	if _, ok := m.Track(9); ok {
		t.Error("Track(9) unexpectedly found")
	}
}
