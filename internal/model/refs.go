// Package model holds the data types shared across the OSC transport,
// mixer mirror, parameter observer, agent loop and client channel: the
// mixer tree (tracks, devices, parameters), parameter change records,
// and the tool-call/approval types the agent loop exchanges with a
// client session.
package model

import "fmt"

// TrackRef identifies a track by its ordinal position as reported by
// the DAW.
type TrackRef struct {
	TrackIndex int `json:"track_index"`
}

// DeviceRef identifies a device relative to its track.
type DeviceRef struct {
	TrackIndex  int `json:"track_index"`
	DeviceIndex int `json:"device_index"`
}

// ParameterRef identifies a parameter. It is globally unique within
// the current attach.
type ParameterRef struct {
	TrackIndex     int `json:"track_index"`
	DeviceIndex    int `json:"device_index"`
	ParameterIndex int `json:"parameter_index"`
}

// Key returns a string suitable for use as a map key, matching the
// "{track}-{device}-{param}" convention the DAW's own remote script
// notifications use to identify a parameter.
func (r ParameterRef) Key() string {
	return fmt.Sprintf("%d-%d-%d", r.TrackIndex, r.DeviceIndex, r.ParameterIndex)
}

// Device returns the DeviceRef this parameter belongs to.
func (r ParameterRef) Device() DeviceRef {
	return DeviceRef{TrackIndex: r.TrackIndex, DeviceIndex: r.DeviceIndex}
}

// Track returns the TrackRef this device belongs to.
func (r DeviceRef) Track() TrackRef {
	return TrackRef{TrackIndex: r.TrackIndex}
}
