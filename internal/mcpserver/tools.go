package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the x402gate MCP server. Descriptions are what the
// LLM reads to decide which tool to use.

var ToolCallWeather = mcp.NewTool("call_weather",
	mcp.WithDescription(
		"Call the priced weather endpoint behind the x402 payment gate. "+
			"Automatically pays the quoted price and retries on a 402 challenge."),
	mcp.WithString("city",
		mcp.Required(),
		mcp.Description("City name to fetch a forecast for (e.g. 'paris')")),
)

var ToolInvokePricedTool = mcp.NewTool("invoke_priced_tool",
	mcp.WithDescription(
		"Call an arbitrary x402-gated HTTP endpoint by name, method, and input. "+
			"Use this for tools not covered by a dedicated MCP tool. The payment "+
			"gate's 402 challenge is paid automatically and the request retried once."),
	mcp.WithString("endpoint",
		mcp.Required(),
		mcp.Description("Full URL of the gated endpoint to call")),
	mcp.WithString("method",
		mcp.Description("HTTP method to use (default GET)"),
		mcp.Enum("GET", "POST", "PUT", "PATCH", "DELETE")),
	mcp.WithObject("input",
		mcp.Description("Input fields for the call: query params for GET/DELETE, JSON body otherwise")),
)
