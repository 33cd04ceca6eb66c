package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/x402gate/gate/pkg/x402"
)

// Handlers holds the dependencies shared by every MCP tool handler. gateway
// is a trusted client (SSRF validation disabled) scoped to the operator's own
// configured gatewayURL; client is the default, SSRF-protected client used
// for endpoints the LLM caller supplies itself.
type Handlers struct {
	gateway    *x402.Client
	client     *x402.Client
	gatewayURL string
}

func NewHandlers(client *x402.Client, gatewayURL string) *Handlers {
	gateway := *client
	return &Handlers{
		gateway:    gateway.WithAllowLocalEndpoints(),
		client:     client,
		gatewayURL: gatewayURL,
	}
}

// HandleCallWeather calls the gate's demo priced /weather route, paying the
// quoted x402 challenge automatically.
func (h *Handlers) HandleCallWeather(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city := req.GetString("city", "")
	if city == "" {
		return mcp.NewToolResultError("city is required"), nil
	}

	tool := x402.Tool{
		Name:        "call_weather",
		InputSchema: x402.InputSchema{Required: []string{"city"}},
		Endpoint:    h.gatewayURL + "/weather",
		Method:      http.MethodGet,
	}

	result, err := x402.Invoke(ctx, h.gateway, tool, map[string]interface{}{"city": city})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("call_weather failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

// HandleInvokePricedTool calls an arbitrary x402-gated endpoint named by the
// caller, paying any 402 challenge the way HandleCallWeather does.
func (h *Handlers) HandleInvokePricedTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	endpoint := req.GetString("endpoint", "")
	if endpoint == "" {
		return mcp.NewToolResultError("endpoint is required"), nil
	}
	method := req.GetString("method", http.MethodGet)

	input := make(map[string]interface{})
	if raw := req.GetArguments()["input"]; raw != nil {
		if m, ok := raw.(map[string]interface{}); ok {
			input = m
		}
	}

	tool := x402.Tool{
		Name:     "invoke_priced_tool",
		Endpoint: endpoint,
		Method:   method,
	}

	result, err := x402.Invoke(ctx, h.client, tool, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invoke failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

func formatResult(result *x402.Result) string {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", result)
	}
	return string(raw)
}
