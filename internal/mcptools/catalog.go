// Package mcptools declares the three DAW tools of spec.md §4.7 as
// mcp.Tool values, following mark3labs/mcp-go's own idiomatic tool
// pattern (mcp.NewTool/mcp.With* builders, req.GetFloat for numeric
// arguments, mcp.NewToolResultText/NewToolResultError for results).
// Handlers here read structure from internal/mixer (enumerate_mixer)
// or drive internal/daw directly (get_device_parameters,
// set_device_parameter), matching spec.md §4.7's requirement that
// only enumerate_mixer MAY be served from the mirror.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/boristopalov/abby/internal/daw"
	"github.com/boristopalov/abby/internal/mixer"
	"github.com/boristopalov/abby/internal/model"
)

// Catalog wires the three DAW tools to one session's mirror and
// bridge. It has no dependency on the MCP server transport itself;
// internal/agent invokes Handle directly against the registered
// definitions, matching the tool schemas verbatim (spec.md §6).
type Catalog struct {
	mirror *mixer.Mirror
	bridge *daw.Bridge
}

// New builds a Catalog bound to one session's mirror and the shared
// bridge.
func New(mirror *mixer.Mirror, bridge *daw.Bridge) *Catalog {
	return &Catalog{mirror: mirror, bridge: bridge}
}

// Definitions returns the mcp.Tool declarations for all three tools,
// in the fixed order enumerate_mixer, get_device_parameters,
// set_device_parameter.
func (c *Catalog) Definitions() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(string(model.ToolEnumerateMixer),
			mcp.WithDescription("Return the current mixer tree: every track and its devices (name and class). Parameters are not included; use get_device_parameters for them. Takes no arguments."),
		),
		mcp.NewTool(string(model.ToolGetDeviceParameters),
			mcp.WithDescription("Return the live parameter list for one device, freshly queried from the DAW."),
			mcp.WithNumber("track_id", mcp.Required(), mcp.Description("Zero-based track index")),
			mcp.WithNumber("device_id", mcp.Required(), mcp.Description("Zero-based device index within the track")),
		),
		mcp.NewTool(string(model.ToolSetDeviceParameter),
			mcp.WithDescription("Set a device parameter to a new value. Mutates the live DAW session and requires user approval."),
			mcp.WithNumber("track_id", mcp.Required(), mcp.Description("Zero-based track index")),
			mcp.WithNumber("device_id", mcp.Required(), mcp.Description("Zero-based device index within the track")),
			mcp.WithNumber("param_id", mcp.Required(), mcp.Description("Zero-based parameter index within the device")),
			mcp.WithNumber("value", mcp.Required(), mcp.Description("New value, within the parameter's [min, max] range")),
		),
	}
}

// Handle dispatches a tool call by name to the matching handler.
func (c *Catalog) Handle(ctx context.Context, call model.ToolCall) (*mcp.CallToolResult, error) {
	req := toCallToolRequest(call)
	switch call.Name {
	case model.ToolEnumerateMixer:
		return c.handleEnumerateMixer(ctx, req)
	case model.ToolGetDeviceParameters:
		return c.handleGetDeviceParameters(ctx, req)
	case model.ToolSetDeviceParameter:
		return c.handleSetDeviceParameter(ctx, req)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown tool %q", call.Name)), nil
	}
}

func (c *Catalog) handleEnumerateMixer(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := c.mirror.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode mixer snapshot: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (c *Catalog) handleGetDeviceParameters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := model.DeviceRef{
		TrackIndex:  int(req.GetFloat("track_id", -1)),
		DeviceIndex: int(req.GetFloat("device_id", -1)),
	}
	if ref.TrackIndex < 0 || ref.DeviceIndex < 0 {
		return mcp.NewToolResultError("'track_id' and 'device_id' are required"), nil
	}

	params, err := c.bridge.GetParameters(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode parameters: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// setParameterResult mirrors ableton.py's set_parameter return shape:
// device/parameter names plus the pre- and post-change value strings.
type setParameterResult struct {
	Device       string `json:"device"`
	Parameter    string `json:"parameter"`
	FromString   string `json:"from_string"`
	ToString     string `json:"to_string"`
}

func (c *Catalog) handleSetDeviceParameter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := model.ParameterRef{
		TrackIndex:     int(req.GetFloat("track_id", -1)),
		DeviceIndex:    int(req.GetFloat("device_id", -1)),
		ParameterIndex: int(req.GetFloat("param_id", -1)),
	}
	if ref.TrackIndex < 0 || ref.DeviceIndex < 0 || ref.ParameterIndex < 0 {
		return mcp.NewToolResultError("'track_id', 'device_id', and 'param_id' are required"), nil
	}
	value := req.GetFloat("value", 0)

	deviceName, paramName := "", ""
	if d, ok := c.mirror.Device(ref.Device()); ok {
		deviceName = d.Name
	}
	if p, ok := c.mirror.Parameter(ref); ok {
		paramName = p.Name
	}

	from, to, err := c.bridge.SetParameter(ctx, ref, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := setParameterResult{Device: deviceName, Parameter: paramName, FromString: from, ToString: to}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toCallToolRequest builds the mcp-go request type from a decoded
// ToolCall, so tool handlers keep using the library's own argument
// accessors (GetFloat, etc.) rather than a hand-rolled map reader.
func toCallToolRequest(call model.ToolCall) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = string(call.Name)
	req.Params.Arguments = call.Arguments
	return req
}
