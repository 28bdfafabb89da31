// Package mcp provides an MCP (Model Context Protocol) server exposing batch,
// signal and step tools over a Personalizer.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/sway/pkg/personalize"
	"github.com/papercomputeco/sway/pkg/utils"
)

type Config struct {
	// Personalizer serves the batch, signal and step tools
	Personalizer *personalize.Personalizer

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the personalization tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "sway",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Personalizer == nil {
			return nil, errors.New("personalizer is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        batchToolName,
			Description: batchDescription,
		}, s.handleBatch)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        signalToolName,
			Description: signalDescription,
		}, s.handleSignal)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        stepToolName,
			Description: stepDescription,
		}, s.handleStep)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// toolError reports a failed tool call to the client.
func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// toolResult serializes the structured output as JSON for the text field.
// Tools returning structured content also return it as a TextContent block
// for clients that ignore structured output.
func toolResult[T any](out T) (*mcp.CallToolResult, T, error) {
	data, err := json.Marshal(out)
	if err != nil {
		var zero T
		return toolError("Failed to serialize results: %v", err), zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, out, nil
}
