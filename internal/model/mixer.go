package model

// Parameter is a single numeric knob on a device, with a name and a
// closed range. Name, Min and Max are immutable for the life of an
// attach; Value mutates as the human or the agent changes it.
type Parameter struct {
	Ref         ParameterRef `json:"ref"`
	Name        string       `json:"name"`
	Value       float64      `json:"value"`
	Min         float64      `json:"min"`
	Max         float64      `json:"max"`
	ValueString string       `json:"value_string,omitempty"`
}

// InRange reports whether the parameter's current value satisfies
// Min <= Value <= Max.
func (p Parameter) InRange() bool {
	return p.Min <= p.Value && p.Value <= p.Max
}

// Device is an effect or instrument on a track, holding an ordered
// list of parameters. Structure (name, class, parameter identities) is
// immutable for the life of an attach.
type Device struct {
	Ref        DeviceRef   `json:"ref"`
	Name       string      `json:"name"`
	ClassName  string      `json:"class_name"`
	Parameters []Parameter `json:"parameters"`
}

// Track holds an ordered list of devices. Structure is immutable for
// the life of an attach.
type Track struct {
	Ref     TrackRef `json:"ref"`
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

// MixerSnapshot is an immutable, atomically-replaceable view of the
// mixer tree. It is owned exclusively by the mixer mirror (internal/mixer):
// rebuilt wholesale on attach or reindex, never mutated in place.
type MixerSnapshot struct {
	Tracks []Track `json:"tracks"`
}

// Track looks up a track by index. The second return value is false if
// no such track exists in this snapshot.
func (s *MixerSnapshot) Track(index int) (Track, bool) {
	if s == nil {
		return Track{}, false
	}
	for _, t := range s.Tracks {
		if t.Ref.TrackIndex == index {
			return t, true
		}
	}
	return Track{}, false
}

// Device looks up a device by ref within this snapshot.
func (s *MixerSnapshot) Device(ref DeviceRef) (Device, bool) {
	t, ok := s.Track(ref.TrackIndex)
	if !ok {
		return Device{}, false
	}
	for _, d := range t.Devices {
		if d.Ref.DeviceIndex == ref.DeviceIndex {
			return d, true
		}
	}
	return Device{}, false
}

// Parameter looks up a parameter by ref within this snapshot.
func (s *MixerSnapshot) Parameter(ref ParameterRef) (Parameter, bool) {
	d, ok := s.Device(ref.Device())
	if !ok {
		return Parameter{}, false
	}
	for _, p := range d.Parameters {
		if p.Ref.ParameterIndex == ref.ParameterIndex {
			return p, true
		}
	}
	return Parameter{}, false
}

// EachParameter calls fn for every parameter in the snapshot, in
// track/device/parameter order. Iteration stops early if fn returns
// false.
func (s *MixerSnapshot) EachParameter(fn func(Parameter) bool) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		for _, d := range t.Devices {
			for _, p := range d.Parameters {
				if !fn(p) {
					return
				}
			}
		}
	}
}
