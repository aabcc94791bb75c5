package agent

import "github.com/mark3labs/mcp-go/mcp"

// textOfResult concatenates the text content of an mcp.CallToolResult,
// matching mcptools' convention of always returning a single
// mcp.TextContent block.
func textOfResult(r any) string {
	result, ok := r.(*mcp.CallToolResult)
	if !ok || result == nil {
		return ""
	}
	out := ""
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}
