// Package mcpserver exposes x402-gated HTTP tools to LLM agents over the
// Model Context Protocol, paying each tool's 402 challenge automatically.
package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/x402gate/gate/internal/config"
	"github.com/x402gate/gate/internal/payermode"
	"github.com/x402gate/gate/pkg/x402"
)

// NewMCPServer builds a configured MCP server backed by cfg's payment mode.
// It returns an error when the configured mode has no usable Payer (e.g.
// Solana mode without a private key) since every tool here needs to pay.
func NewMCPServer(cfg *config.Config) (*server.MCPServer, error) {
	_, payer, err := payermode.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build payment mode: %w", err)
	}
	if payer == nil {
		return nil, fmt.Errorf("payment mode %q has no payer configured (missing key/secret)", cfg.PaymentMode)
	}

	client := x402.NewClient(payer)
	h := NewHandlers(client, cfg.GatewayURL)

	s := server.NewMCPServer("x402gate", "1.0.0")
	s.AddTool(ToolCallWeather, h.HandleCallWeather)
	s.AddTool(ToolInvokePricedTool, h.HandleInvokePricedTool)

	return s, nil
}
