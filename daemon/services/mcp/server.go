// Package mcp provides a Model Context Protocol server exposing the
// correlation engine's telemetry, health, and history to AI agents.
//
// Uses the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk)
// implementing protocol version 2025-06-18. Supports two transports:
//   - Streamable HTTP: for remote connections (Claude, ChatGPT, Cursor, ...)
//   - STDIO: for local connections, newline-delimited JSON over stdin/stdout
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// TelemetryProvider is the read-only view into the engine the MCP server
// needs. api.Server satisfies it.
type TelemetryProvider interface {
	GetLatestTelemetry() (pack.Telemetry, bool)
	GetHealth() pack.HealthRecord
	GetHistory(limit int) []pack.Telemetry
}

// Server exposes TelemetryProvider over MCP.
type Server struct {
	ctx         *domain.Context
	mcpServer   *mcp.Server
	httpHandler *mcp.StreamableHTTPHandler
	provider    TelemetryProvider
}

// NewServer creates a new MCP server instance.
func NewServer(ctx *domain.Context, provider TelemetryProvider) *Server {
	return &Server{ctx: ctx, provider: provider}
}

// Initialize sets up the MCP server with all tools, resources, and prompts.
func (s *Server) Initialize() error {
	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    "battcorrelate",
			Version: s.ctx.Version,
		},
		&mcp.ServerOptions{
			Instructions: "Battery pack thermal-runaway correlation engine providing current telemetry, " +
				"decode health, and bounded history for a 104s8p LFP pack.",
		},
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	s.httpHandler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return s.mcpServer },
		nil,
	)

	logger.Info("MCP server initialized with official SDK (protocol 2025-06-18)")
	return nil
}

// GetHTTPHandler returns the Streamable HTTP handler for the MCP endpoint.
func (s *Server) GetHTTPHandler() http.Handler {
	if s.httpHandler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "MCP server not initialized", http.StatusInternalServerError)
		})
	}
	return s.httpHandler
}

// GetMCPServer returns the underlying MCP server instance.
func (s *Server) GetMCPServer() *mcp.Server {
	return s.mcpServer
}

// RunSTDIO runs the MCP server over stdin/stdout using newline-delimited
// JSON. Blocks until ctx is cancelled or the pipe closes.
func (s *Server) RunSTDIO(ctx context.Context) error {
	if s.mcpServer == nil {
		return fmt.Errorf("MCP server not initialized")
	}
	logger.Info("MCP STDIO transport starting (stdin/stdout)")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// mcpEmptyArgs is the argument shape for tools that take none.
type mcpEmptyArgs struct{}

// mcpHistoryArgs is the argument shape for get_telemetry_history.
type mcpHistoryArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum records to return, 0 means all buffered history"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_telemetry",
		Description: "Get the most recently published telemetry record: pack voltage/current, hotspot, active anomaly categories, system state, and cascade stage",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ mcpEmptyArgs) (*mcp.CallToolResult, any, error) {
		t, ok := s.provider.GetLatestTelemetry()
		if !ok {
			return textResult("no telemetry published yet"), nil, nil
		}
		return jsonResult(t)
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_health",
		Description: "Get the engine's decode-error counters, snapshot queue depth, and running status",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ mcpEmptyArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(s.provider.GetHealth())
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_telemetry_history",
		Description: "Get recent telemetry records, oldest first, optionally bounded by limit",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, args mcpHistoryArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(s.provider.GetHistory(args.Limit))
	})

	logger.Debug("MCP tools registered (3 tools)")
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "battery://telemetry",
		Name:        "latest-telemetry",
		Description: "Most recently published telemetry record",
		MIMEType:    "application/json",
	}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		t, ok := s.provider.GetLatestTelemetry()
		if !ok {
			return resourceResult("battery://telemetry", `{"error": "no telemetry published yet"}`)
		}
		data, _ := json.Marshal(t)
		return resourceResult("battery://telemetry", string(data))
	})

	logger.Debug("MCP resources registered (1 resource)")
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        "assess_pack_risk",
		Description: "Assess the current risk level of the battery pack from its latest telemetry",
	}, func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		t, ok := s.provider.GetLatestTelemetry()
		if !ok {
			return &mcp.GetPromptResult{
				Description: "Pack risk assessment",
				Messages: []*mcp.PromptMessage{{
					Role:    "user",
					Content: &mcp.TextContent{Text: "No telemetry has been published yet; the pack source may not be running."},
				}},
			}, nil
		}
		data, _ := json.MarshalIndent(t, "", "  ")
		return &mcp.GetPromptResult{
			Description: "Pack risk assessment",
			Messages: []*mcp.PromptMessage{{
				Role: "user",
				Content: &mcp.TextContent{Text: fmt.Sprintf(`Given this battery pack telemetry record, assess:
1. Current system state and whether the emergency latch is held
2. Which anomaly categories are active and their likely cause
3. Cascade stage and estimated time to the next stage, if any
4. Recommended operator action

Telemetry:
%s`, string(data))},
			}},
		}, nil
	})

	logger.Debug("MCP prompts registered (1 prompt)")
}

// textResult creates a tool result with text content.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult creates a tool result with JSON-formatted text content.
func jsonResult(data any) (*mcp.CallToolResult, any, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error formatting response: %v", err)}},
			IsError: true,
		}, nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(jsonData)}},
	}, nil, nil
}

// resourceResult creates a resource read result with text content.
func resourceResult(uri, text string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		}},
	}, nil
}
