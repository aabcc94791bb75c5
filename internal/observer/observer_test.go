package observer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boristopalov/abby/internal/config"
	"github.com/boristopalov/abby/internal/daw"
	"github.com/boristopalov/abby/internal/model"
	"github.com/boristopalov/abby/internal/osc"
)

// fakeCaller is a minimal daw.Caller: Fire/Call are no-ops that always
// succeed, and Listen records the single handler the bridge registers
// so tests can push synthetic notifications directly.
type fakeCaller struct {
	mu       sync.Mutex
	listener osc.Handler
}

func (f *fakeCaller) Call(context.Context, string, []any, time.Duration) (osc.Message, error) {
	return osc.Message{}, nil
}
func (f *fakeCaller) Fire(string, []any) error { return nil }
func (f *fakeCaller) Listen(_ string, h osc.Handler) func() {
	f.mu.Lock()
	f.listener = h
	f.mu.Unlock()
	return func() {}
}

func (f *fakeCaller) push(track, device, param int32, value float32) {
	f.mu.Lock()
	h := f.listener
	f.mu.Unlock()
	if h != nil {
		h(osc.Message{
			Address: "/live/device/get/parameter/value",
			Args:    []any{track, device, param, value},
		})
	}
}

// fakePublisher records every published ParameterChange.
type fakePublisher struct {
	mu      sync.Mutex
	changes []model.ParameterChange
}

func (p *fakePublisher) PublishParameterChange(c model.ParameterChange) {
	p.mu.Lock()
	p.changes = append(p.changes, c)
	p.mu.Unlock()
}

func (p *fakePublisher) snapshot() []model.ParameterChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ParameterChange(nil), p.changes...)
}

// fakeClock lets tests control "now" deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func singleParamSnapshot(value, min, max float64) model.MixerSnapshot {
	return model.MixerSnapshot{Tracks: []model.Track{{
		Ref:  model.TrackRef{TrackIndex: 0},
		Name: "Bass",
		Devices: []model.Device{{
			Ref:  model.DeviceRef{TrackIndex: 0, DeviceIndex: 0},
			Name: "Comp",
			Parameters: []model.Parameter{
				{Ref: model.ParameterRef{TrackIndex: 0, DeviceIndex: 0, ParameterIndex: 3}, Name: "Wet", Value: value, Min: min, Max: max},
			},
		}},
	}}}
}

func newTestObserver(t *testing.T, debounce, window time.Duration) (*Observer, *fakeCaller, *fakePublisher, *fakeClock) {
	t.Helper()
	fc := &fakeCaller{}
	pub := &fakePublisher{}
	clock := newFakeClock()
	bridge := daw.New(fc, config.Timeouts{LivenessSeconds: 5, QuerySeconds: 2})
	o := New(bridge, pub, Options{Debounce: debounce, Window: window, Clock: clock})
	return o, fc, pub, clock
}

func TestFirstNotificationAfterSubscribeIsDropped(t *testing.T) {
	o, fc, pub, _ := newTestObserver(t, 20*time.Millisecond, time.Hour)
	o.Subscribe(context.Background(), singleParamSnapshot(0.40, 0.0, 1.0), nil)

	// param wire index is 3+2=5 per the placeholder offset.
	fc.push(0, 0, 5, 0.40)
	time.Sleep(50 * time.Millisecond)

	if len(pub.snapshot()) != 0 {
		t.Fatalf("initial echo produced a commit: %+v", pub.snapshot())
	}
}

func TestNoOpNotificationProducesNoCommit(t *testing.T) {
	o, fc, pub, _ := newTestObserver(t, 20*time.Millisecond, time.Hour)
	o.Subscribe(context.Background(), singleParamSnapshot(0.40, 0.0, 1.0), nil)
	fc.push(0, 0, 5, 0.40) // initial echo, dropped
	fc.push(0, 0, 5, 0.40) // identical to observation.value
	time.Sleep(50 * time.Millisecond)

	if len(pub.snapshot()) != 0 {
		t.Fatalf("no-op notification produced a commit: %+v", pub.snapshot())
	}
}

func TestSingleChangeCommitsOnceAfterQuietPeriod(t *testing.T) {
	o, fc, pub, _ := newTestObserver(t, 30*time.Millisecond, time.Hour)
	o.Subscribe(context.Background(), singleParamSnapshot(0.40, 0.0, 1.0), nil)
	fc.push(0, 0, 5, 0.40) // initial echo
	fc.push(0, 0, 5, 0.70)

	time.Sleep(10 * time.Millisecond)
	if len(pub.snapshot()) != 0 {
		t.Fatal("commit fired before debounce window elapsed")
	}

	time.Sleep(60 * time.Millisecond)
	changes := pub.snapshot()
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if changes[0].OldValue != 0.40 || changes[0].NewValue != 0.70 {
		t.Errorf("change = %+v, want old=0.40 new=0.70", changes[0])
	}
}

func TestBurstOfNotificationsCollapsesToOneCommit(t *testing.T) {
	o, fc, pub, _ := newTestObserver(t, 40*time.Millisecond, time.Hour)
	o.Subscribe(context.Background(), singleParamSnapshot(0.40, 0.0, 1.0), nil)
	fc.push(0, 0, 5, 0.40) // initial echo

	for _, v := range []float32{0.50, 0.55, 0.60, 0.70} {
		fc.push(0, 0, 5, v)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)
	changes := pub.snapshot()
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1: %+v", len(changes), changes)
	}
	if changes[0].OldValue != 0.40 || changes[0].NewValue != 0.70 {
		t.Errorf("change = %+v, want old=0.40 new=0.70", changes[0])
	}
	if !changes[0].Valid() {
		t.Errorf("change failed Valid(): %+v", changes[0])
	}
}

func TestSubscribeThenUnsubscribeLeavesNoHistory(t *testing.T) {
	o, fc, pub, _ := newTestObserver(t, 20*time.Millisecond, time.Hour)
	o.Subscribe(context.Background(), singleParamSnapshot(0.40, 0.0, 1.0), nil)
	o.Unsubscribe()
	fc.push(0, 0, 5, 0.70) // arrives after unsubscribe: observation map is empty
	time.Sleep(50 * time.Millisecond)

	if len(pub.snapshot()) != 0 {
		t.Fatalf("notification after unsubscribe produced a commit: %+v", pub.snapshot())
	}
	if len(o.RecentChanges()) != 0 {
		t.Fatalf("RecentChanges() after unsubscribe = %+v, want empty", o.RecentChanges())
	}
}

func TestRecentChangesEvictsOnRead(t *testing.T) {
	o, _, _, clock := newTestObserver(t, time.Millisecond, 60*time.Second)
	o.Subscribe(context.Background(), model.MixerSnapshot{}, nil)

	o.history = []model.ParameterChange{
		{Timestamp: time.Unix(1010, 0), Sequence: 1},
		{Timestamp: time.Unix(1030, 0), Sequence: 2},
		{Timestamp: time.Unix(1080, 0), Sequence: 3},
	}

	clock.now = time.Unix(1090, 0)
	got := o.RecentChanges()
	if len(got) != 2 {
		t.Fatalf("at T=90 (relative): len = %d, want 2: %+v", len(got), got)
	}

	clock.now = time.Unix(1150, 0)
	got = o.RecentChanges()
	if len(got) != 0 {
		t.Fatalf("at T=150 (relative): len = %d, want 0: %+v", len(got), got)
	}
}

func TestProgressReportsSubscribePhaseFiftyToHundred(t *testing.T) {
	o, _, _, _ := newTestObserver(t, time.Millisecond, time.Hour)
	var progress []int
	o.Subscribe(context.Background(), singleParamSnapshot(0.1, 0, 1), func(p int) { progress = append(progress, p) })

	if progress[0] != 50 {
		t.Errorf("first progress = %d, want 50", progress[0])
	}
	if progress[len(progress)-1] != 100 {
		t.Errorf("last progress = %d, want 100", progress[len(progress)-1])
	}
}
