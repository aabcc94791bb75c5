package model

import "time"

// ParameterChange is a single coalesced parameter mutation, as
// committed by the observer's debounce logic. Immutable once emitted.
type ParameterChange struct {
	Ref           ParameterRef `json:"ref"`
	TrackName     string       `json:"track_name"`
	DeviceName    string       `json:"device_name"`
	ParameterName string       `json:"parameter_name"`
	OldValue      float64      `json:"old_value"`
	NewValue      float64      `json:"new_value"`
	Min           float64      `json:"min"`
	Max           float64      `json:"max"`
	Timestamp     time.Time    `json:"timestamp"`
	// Sequence is a process-lifetime monotonically increasing counter,
	// assigned at commit time. It orders changes that land in the same
	// wall-clock instant and survives clock adjustments, standing in
	// for the "monotonic" half of spec.md's "monotonic + wall-clock"
	// timestamp requirement (wall-clock time alone is not monotonic
	// across NTP adjustments).
	Sequence uint64 `json:"sequence"`
}

// Valid reports whether the change satisfies the core invariant from
// spec.md §8: both old and new values lie within [min, max] and the
// value actually changed.
func (c ParameterChange) Valid() bool {
	if c.OldValue == c.NewValue {
		return false
	}
	if c.OldValue < c.Min || c.OldValue > c.Max {
		return false
	}
	if c.NewValue < c.Min || c.NewValue > c.Max {
		return false
	}
	return true
}
