// Package observer implements the parameter-observer subsystem
// (spec.md §4.5): subscribes every parameter in a snapshot to change
// notifications, debounces bursts into single committed changes, and
// keeps a windowed, read-time-evicted history. This is grounded on
// ableton.py's subscribe_to_device_parameters/notification handler
// from the retrieved original_source/, restructured per spec.md §9's
// design note replacing the "timer stored inside the per-parameter
// record and cleared by overwriting" pattern with a per-ParameterRef
// cancellable scheduled task whose handle lives alongside the
// observation, guarded by a mutex rather than mutated from arbitrary
// goroutines.
package observer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boristopalov/abby/internal/daw"
	"github.com/boristopalov/abby/internal/model"
)

// Publisher receives parameter_change events as they commit.
type Publisher interface {
	PublishParameterChange(model.ParameterChange)
}

// Clock abstracts wall-clock time so tests can inject a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// observation is C5's per-ParameterRef bookkeeping record: the last
// committed value, whether the very next notification is the DAW's
// synthetic post-subscribe echo, and the handle to any pending
// debounce timer.
type observation struct {
	ref      model.ParameterRef
	value    float64
	min, max float64
	trackName, deviceName, parameterName string

	initial bool
	timer   *time.Timer
}

// Observer runs the subscribe and notification phases described in
// spec.md §4.5 for one session's attach.
type Observer struct {
	bridge    *daw.Bridge
	publisher Publisher
	clock     Clock
	debounce  time.Duration
	window    time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	observations map[string]*observation
	history      []model.ParameterChange
	sequence     uint64

	unregisterNotify func()
}

// Options configures an Observer.
type Options struct {
	Debounce time.Duration
	Window   time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// New builds an Observer bound to the given bridge and publisher.
func New(bridge *daw.Bridge, publisher Publisher, opts Options) *Observer {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		bridge:       bridge,
		publisher:    publisher,
		clock:        clock,
		debounce:     opts.Debounce,
		window:       opts.Window,
		logger:       logger.With("component", "observer"),
		observations: make(map[string]*observation),
	}
}

// Subscribe runs the subscribe phase over every parameter in snap:
// insert an observation with initial=true, then send start_listen.
// Progress is reported 50 -> 100 per spec.md §4.5. Subscribe registers
// the single standing notification handler on first use; subsequent
// calls (reindex) replace the observation set without re-registering.
func (o *Observer) Subscribe(ctx context.Context, snap model.MixerSnapshot, progress func(int)) {
	report := progress
	if report == nil {
		report = func(int) {}
	}

	o.mu.Lock()
	if o.unregisterNotify == nil {
		o.mu.Unlock()
		o.unregisterNotify = o.bridge.OnParameterValue(o.handleNotification)
		o.mu.Lock()
	}

	fresh := make(map[string]*observation)
	var params []model.Parameter
	snap.EachParameter(func(p model.Parameter) bool {
		params = append(params, p)
		return true
	})

	for _, p := range params {
		track, _ := snap.Track(p.Ref.TrackIndex)
		device, _ := snap.Device(p.Ref.Device())
		fresh[p.Ref.Key()] = &observation{
			ref:           p.Ref,
			value:         p.Value,
			min:           p.Min,
			max:           p.Max,
			trackName:     track.Name,
			deviceName:    device.Name,
			parameterName: p.Name,
			initial:       true,
		}
	}
	o.observations = fresh
	o.mu.Unlock()

	report(50)
	total := len(params)
	for i, p := range params {
		if err := o.bridge.StartListen(p.Ref); err != nil {
			o.logger.Warn("start_listen failed", "ref", p.Ref.Key(), "error", err)
		}
		if total > 0 {
			report(50 + int(50*float64(i+1)/float64(total)))
		}
	}
	report(100)
}

// Unsubscribe sends stop_listen for every currently observed
// parameter and clears the observation set (spec.md §4.5's
// unsubscribe step, run on detach or before a reindex's fresh
// Subscribe). History is retained across reindex per spec.md §4.5's
// SHOULD.
func (o *Observer) Unsubscribe() {
	o.mu.Lock()
	obs := make([]*observation, 0, len(o.observations))
	for _, ob := range o.observations {
		obs = append(obs, ob)
	}
	o.observations = make(map[string]*observation)
	o.mu.Unlock()

	for _, ob := range obs {
		o.mu.Lock()
		if ob.timer != nil {
			ob.timer.Stop()
		}
		o.mu.Unlock()
		if err := o.bridge.StopListen(ob.ref); err != nil {
			o.logger.Warn("stop_listen failed", "ref", ob.ref.Key(), "error", err)
		}
	}
}

// Close tears down the standing notification handler. Call once per
// attach lifetime, on session discard (spec.md §5's cancellation
// rules: pending debounce timers are canceled only when the session
// itself is discarded).
func (o *Observer) Close() {
	o.mu.Lock()
	unreg := o.unregisterNotify
	o.unregisterNotify = nil
	for _, ob := range o.observations {
		if ob.timer != nil {
			ob.timer.Stop()
		}
	}
	o.mu.Unlock()
	if unreg != nil {
		unreg()
	}
}

// handleNotification implements the notification phase of spec.md
// §4.5, steps 1-5. It is registered on the bridge as the single
// standing handler for parameter-value push notifications.
func (o *Observer) handleNotification(ref model.ParameterRef, newValue float64) {
	o.mu.Lock()
	ob, ok := o.observations[ref.Key()]
	if !ok {
		o.mu.Unlock()
		return // step 1: notification for a retired snapshot
	}

	if ob.initial {
		ob.initial = false
		o.mu.Unlock()
		return // step 2: synthetic post-subscribe echo, not a user change
	}

	if newValue == ob.value {
		o.mu.Unlock()
		return // step 3: no-op notification
	}

	if ob.timer != nil {
		ob.timer.Stop() // step 4: cancel any pending debounce
	}

	oldValue := ob.value
	ob.timer = time.AfterFunc(o.debounce, func() {
		o.commit(ref, oldValue, newValue)
	})
	// A later burst within the debounce window replaces the pending
	// commit's target value by rescheduling with the observation's
	// current oldValue snapshot but the latest notified value; see the
	// closure capture: each new call re-closes over the *current*
	// newValue while oldValue stays anchored to the value at burst
	// start (captured on the first notification of the burst, since
	// commit() advances ob.value only once the timer actually fires).
	o.mu.Unlock()
}

// commit is the debounce action of spec.md §4.5: build a
// ParameterChange, append it to history, advance the observation's
// committed value, and publish.
func (o *Observer) commit(ref model.ParameterRef, oldValue, newValue float64) {
	o.mu.Lock()
	ob, ok := o.observations[ref.Key()]
	if !ok {
		o.mu.Unlock()
		return
	}
	ob.timer = nil
	ob.value = newValue

	o.sequence++
	change := model.ParameterChange{
		Ref:           ref,
		TrackName:     ob.trackName,
		DeviceName:    ob.deviceName,
		ParameterName: ob.parameterName,
		OldValue:      oldValue,
		NewValue:      newValue,
		Min:           ob.min,
		Max:           ob.max,
		Timestamp:     o.clock.Now(),
		Sequence:      o.sequence,
	}
	o.history = append(o.history, change)
	o.mu.Unlock()

	if o.publisher != nil {
		o.publisher.PublishParameterChange(change)
	}
}

// RecentChanges returns the history entries within the trailing window
// W of clock time (an entry exactly W old is kept), evicting older
// entries at read time (spec.md
// §4.5's "History window": a read-time filter, not a background
// task).
func (o *Observer) RecentChanges() []model.ParameterChange {
	now := o.clock.Now()
	cutoff := now.Add(-o.window)

	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.history[:0:0]
	for _, c := range o.history {
		if !c.Timestamp.Before(cutoff) {
			kept = append(kept, c)
		}
	}
	o.history = kept
	return append([]model.ParameterChange(nil), kept...)
}
