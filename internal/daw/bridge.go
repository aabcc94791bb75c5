// Package daw is the domain API over the request/response shim
// (internal/rpc): liveness, mixer enumeration, parameter listing,
// parameter set, and listen/unlisten, following spec.md §4.3 and the
// OSC addresses named verbatim in ableton.py from the retrieved
// original_source/ (the shape and ordering of every query below is
// grounded there, not invented).
package daw

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/boristopalov/abby/internal/config"
	"github.com/boristopalov/abby/internal/dawerr"
	"github.com/boristopalov/abby/internal/model"
	"github.com/boristopalov/abby/internal/osc"
)

// Caller is the subset of *rpc.Shim the bridge depends on.
type Caller interface {
	Call(ctx context.Context, address string, args []any, timeout time.Duration) (osc.Message, error)
	Fire(address string, args []any) error
	Listen(address string, h osc.Handler) (unregister func())
}

// placeholderParams is the count of reserved placeholder entries at
// the head of every device's parameter list, per spec.md §6's
// "parameter-list quirk": the effective param_id for the k-th real
// parameter is k (0-based), not k+2. This bridge reads at index k+2
// and reports param_id=k, resolving the asymmetric-arithmetic open
// question in spec.md §9 by committing to that single mapping
// end-to-end (see DESIGN.md).
const placeholderParams = 2

// Bridge is the DAW domain API. It is stateless; callers may share one
// Bridge across sessions (spec.md §5).
type Bridge struct {
	rpc     Caller
	timeout config.Timeouts
}

// New builds a Bridge over the given caller (typically an *rpc.Shim).
func New(caller Caller, timeouts config.Timeouts) *Bridge {
	return &Bridge{rpc: caller, timeout: timeouts}
}

// ProgressSink receives enumeration/subscription progress in [0, 100].
type ProgressSink func(progress int)

// IsLive reports whether the DAW answers the liveness probe within
// the configured liveness timeout.
func (b *Bridge) IsLive(ctx context.Context) bool {
	_, err := b.rpc.Call(ctx, "/live/test", nil, b.timeout.Liveness())
	return err == nil
}

// EnumerateMixer queries num_tracks, then track_data, then per-track
// device names/classes, assembling a MixerSnapshot. Progress is
// reported 0 -> 50 at the milestones named in spec.md §4.3/§8 scenario
// 1: 0 before the first query, 10 after num_tracks, 20 after
// track_data, then evenly across per-track device queries up to 50.
func (b *Bridge) EnumerateMixer(ctx context.Context, progress ProgressSink) (model.MixerSnapshot, error) {
	report := progress
	if report == nil {
		report = func(int) {}
	}
	report(0)

	numTracksMsg, err := b.rpc.Call(ctx, "/live/song/get/num_tracks", nil, b.timeout.Query())
	if err != nil {
		return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: num_tracks: %w", err)
	}
	numTracks, ok := numTracksMsg.Int(0)
	if !ok {
		return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: num_tracks: %w: missing int arg", dawerr.ErrProtocol)
	}
	report(10)

	trackDataMsg, err := b.rpc.Call(ctx, "/live/song/get/track_data", nil, b.timeout.Query())
	if err != nil {
		return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: track_data: %w", err)
	}
	trackNames := make([]string, numTracks)
	for i := range trackNames {
		name, ok := trackDataMsg.String(i)
		if !ok {
			return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: track_data[%d]: %w: missing string arg", i, dawerr.ErrProtocol)
		}
		trackNames[i] = name
	}
	report(20)

	tracks := make([]model.Track, 0, numTracks)
	for ti := 0; ti < int(numTracks); ti++ {
		track := model.Track{
			Ref:  model.TrackRef{TrackIndex: ti},
			Name: trackNames[ti],
		}

		numDevicesMsg, err := b.rpc.Call(ctx, "/live/track/get/num_devices", []any{int32(ti)}, b.timeout.Query())
		if err != nil {
			return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: track %d num_devices: %w", ti, err)
		}
		numDevices, ok := numDevicesMsg.Int(1)
		if !ok {
			numDevices, ok = numDevicesMsg.Int(0)
		}
		if !ok {
			return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: track %d num_devices: %w: missing int arg", ti, dawerr.ErrProtocol)
		}

		if numDevices > 0 {
			namesMsg, err := b.rpc.Call(ctx, "/live/track/get/devices/name", []any{int32(ti)}, b.timeout.Query())
			if err != nil {
				return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: track %d device names: %w", ti, err)
			}
			classesMsg, err := b.rpc.Call(ctx, "/live/track/get/devices/class_name", []any{int32(ti)}, b.timeout.Query())
			if err != nil {
				return model.MixerSnapshot{}, fmt.Errorf("daw: enumerate: track %d device classes: %w", ti, err)
			}

			for di := 0; di < int(numDevices); di++ {
				name, _ := namesMsg.String(di + 1)
				class, _ := classesMsg.String(di + 1)
				track.Devices = append(track.Devices, model.Device{
					Ref:       model.DeviceRef{TrackIndex: ti, DeviceIndex: di},
					Name:      name,
					ClassName: class,
				})
			}
		}

		tracks = append(tracks, track)
		report(20 + int(30*float64(ti+1)/float64(max(1, int(numTracks)))))
	}

	report(50)
	return model.MixerSnapshot{Tracks: tracks}, nil
}

// GetParameters issues names/values/mins/maxes for a device and drops
// the first placeholderParams entries of each, per the parameter-list
// quirk documented in spec.md §6.
func (b *Bridge) GetParameters(ctx context.Context, ref model.DeviceRef) ([]model.Parameter, error) {
	trackArg, deviceArg := int32(ref.TrackIndex), int32(ref.DeviceIndex)
	args := []any{trackArg, deviceArg}

	namesMsg, err := b.rpc.Call(ctx, "/live/device/get/parameters/name", args, b.timeout.Query())
	if err != nil {
		return nil, fmt.Errorf("daw: get_parameters: names: %w", err)
	}
	valuesMsg, err := b.rpc.Call(ctx, "/live/device/get/parameters/value", args, b.timeout.Query())
	if err != nil {
		return nil, fmt.Errorf("daw: get_parameters: values: %w", err)
	}
	minsMsg, err := b.rpc.Call(ctx, "/live/device/get/parameters/min", args, b.timeout.Query())
	if err != nil {
		return nil, fmt.Errorf("daw: get_parameters: mins: %w", err)
	}
	maxesMsg, err := b.rpc.Call(ctx, "/live/device/get/parameters/max", args, b.timeout.Query())
	if err != nil {
		return nil, fmt.Errorf("daw: get_parameters: maxes: %w", err)
	}

	total := len(namesMsg.Args) - 2 // subtract the leading track/device echo
	if total < 0 {
		total = 0
	}

	params := make([]model.Parameter, 0, total-placeholderParams)
	for k := 0; k+2+placeholderParams < len(namesMsg.Args); k++ {
		idx := k + 2 + placeholderParams // skip echoed track/device args plus the 2 placeholders
		name, ok := namesMsg.String(idx)
		if !ok {
			break
		}
		value, _ := valuesMsg.Float(idx)
		min, _ := minsMsg.Float(idx)
		max, _ := maxesMsg.Float(idx)

		params = append(params, model.Parameter{
			Ref:   model.ParameterRef{TrackIndex: ref.TrackIndex, DeviceIndex: ref.DeviceIndex, ParameterIndex: k},
			Name:  name,
			Value: wireFloat(value),
			Min:   wireFloat(min),
			Max:   wireFloat(max),
		})
	}

	return params, nil
}

// SetParameter reads the pre-change value_string, sends the set, reads
// the post-change value_string, and returns both, per spec.md §4.3.
func (b *Bridge) SetParameter(ctx context.Context, ref model.ParameterRef, value float64) (fromString, toString string, err error) {
	valueStringArgs := []any{int32(ref.TrackIndex), int32(ref.DeviceIndex), int32(ref.ParameterIndex + placeholderParams)}

	beforeMsg, err := b.rpc.Call(ctx, "/live/device/get/parameter/value_string", valueStringArgs, b.timeout.Query())
	if err != nil {
		return "", "", fmt.Errorf("daw: set_parameter: read before value_string: %w", err)
	}
	fromString, _ = beforeMsg.String(len(beforeMsg.Args) - 1)

	setArgs := []any{int32(ref.TrackIndex), int32(ref.DeviceIndex), int32(ref.ParameterIndex + placeholderParams), float32(value)}
	if _, err := b.rpc.Call(ctx, "/live/device/set/parameter/value", setArgs, b.timeout.Query()); err != nil {
		return "", "", fmt.Errorf("daw: set_parameter: set: %w", err)
	}

	afterMsg, err := b.rpc.Call(ctx, "/live/device/get/parameter/value_string", valueStringArgs, b.timeout.Query())
	if err != nil {
		return fromString, "", fmt.Errorf("daw: set_parameter: read after value_string: %w", err)
	}
	toString, _ = afterMsg.String(len(afterMsg.Args) - 1)

	return fromString, toString, nil
}

// StartListen enables push notifications for a parameter.
func (b *Bridge) StartListen(ref model.ParameterRef) error {
	args := []any{int32(ref.TrackIndex), int32(ref.DeviceIndex), int32(ref.ParameterIndex + placeholderParams)}
	if err := b.rpc.Fire("/live/device/start_listen/parameter/value", args); err != nil {
		return fmt.Errorf("daw: start_listen: %w", err)
	}
	return nil
}

// StopListen disables push notifications for a parameter.
func (b *Bridge) StopListen(ref model.ParameterRef) error {
	args := []any{int32(ref.TrackIndex), int32(ref.DeviceIndex), int32(ref.ParameterIndex + placeholderParams)}
	if err := b.rpc.Fire("/live/device/stop_listen/parameter/value", args); err != nil {
		return fmt.Errorf("daw: stop_listen: %w", err)
	}
	return nil
}

// ParameterValueHandler receives a decoded parameter-value push
// notification: the parameter it names and its newly reported value.
type ParameterValueHandler func(ref model.ParameterRef, value float64)

// OnParameterValue registers the standing push-notification handler
// for parameter-value updates (the single handler required by
// spec.md §4.5's notification phase), decoding the wire arguments and
// undoing the placeholder-index offset so callers see the same
// param_id space as GetParameters/SetParameter.
func (b *Bridge) OnParameterValue(h ParameterValueHandler) (unregister func()) {
	return b.rpc.Listen("/live/device/get/parameter/value", func(m osc.Message) {
		track, ok1 := m.Int(0)
		device, ok2 := m.Int(1)
		param, ok3 := m.Int(2)
		value, ok4 := m.Float(3)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return
		}
		ref := model.ParameterRef{
			TrackIndex:     int(track),
			DeviceIndex:    int(device),
			ParameterIndex: int(param) - placeholderParams,
		}
		h(ref, wireFloat(value))
	})
}

// wireFloat widens a float32 wire value to the float64 with the same
// shortest decimal form, so 0.7 on the wire reads as 0.7 rather than
// 0.699999988079071.
func wireFloat(v float32) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	return f
}
