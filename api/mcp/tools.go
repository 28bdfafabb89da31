package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/personalize"
	"github.com/papercomputeco/sway/pkg/signal"
)

var (
	batchToolName    = "batch"
	batchDescription = "Get the next batch of personalized content ids for a session. The session moves along its blueprint on every batch."

	signalToolName    = "signal"
	signalDescription = "Record a user action (LIKE, WATCH, PURCHASE, ...) on a content id for a session."

	stepToolName    = "step"
	stepDescription = "Resolve a blueprint transition from a state with a signal without touching any session."
)

// BatchInput represents the input arguments for the batch tool.
type BatchInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to serve"`
	Size      int    `json:"size,omitempty" jsonschema:"number of items to return (default: configured batch size)"`
}

// BatchOutput represents the output of the batch tool.
type BatchOutput struct {
	SessionID string           `json:"session_id"`
	IDs       []string         `json:"ids"`
	Metadata  []map[string]any `json:"metadata"`
	Count     int              `json:"count"`
}

// SignalInput represents the input arguments for the signal tool.
type SignalInput struct {
	SessionID string `json:"session_id" jsonschema:"the session the user acted in"`
	ContentID string `json:"content_id" jsonschema:"the id of the content the user acted on"`
	Label     string `json:"label" jsonschema:"the signal label, e.g. LIKE"`
}

// SignalOutput represents the output of the signal tool.
type SignalOutput struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	BatchType   string `json:"batch_type"`
}

// StepInput represents the input arguments for the step tool.
type StepInput struct {
	Algorithm string `json:"algorithm" jsonschema:"SIMPLE, CUSTOM or a preset name such as CONTENT_CURATION"`
	CustomID  string `json:"custom_id,omitempty" jsonschema:"custom blueprint id when algorithm is CUSTOM"`
	State     string `json:"state,omitempty" jsonschema:"the current state (default: initial state)"`
	Signal    string `json:"signal" jsonschema:"the signal label"`
}

// StepOutput represents the output of the step tool.
type StepOutput struct {
	Source      string           `json:"source"`
	Destination string           `json:"destination"`
	BatchType   string           `json:"batch_type"`
	Params      blueprint.Params `json:"params"`
}

func (s *Server) handleBatch(ctx context.Context, _ *mcp.CallToolRequest, input BatchInput) (*mcp.CallToolResult, BatchOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP batch request", "session_id", input.SessionID, "size", input.Size)

	batch, err := s.config.Personalizer.Batch(ctx, input.SessionID, personalize.BatchOptions{Size: input.Size})
	if err != nil {
		logger.Error("failed to serve batch", "session_id", input.SessionID, "error", err)
		return toolError("Failed to serve batch: %v", err), BatchOutput{}, nil
	}

	out := BatchOutput{
		SessionID: input.SessionID,
		IDs:       batch.IDs,
		Metadata:  batch.Metadata,
		Count:     batch.Len(),
	}
	// the output schema requires arrays
	if out.IDs == nil {
		out.IDs = []string{}
		out.Metadata = []map[string]any{}
	}
	return toolResult(out)
}

func (s *Server) handleSignal(ctx context.Context, _ *mcp.CallToolRequest, input SignalInput) (*mcp.CallToolResult, SignalOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP signal request", "session_id", input.SessionID, "label", input.Label)

	res, err := s.config.Personalizer.AddSignal(ctx, input.SessionID, signal.Signal{Label: input.Label}, input.ContentID)
	if err != nil {
		logger.Error("failed to record signal", "session_id", input.SessionID, "error", err)
		return toolError("Failed to record signal: %v", err), SignalOutput{}, nil
	}

	return toolResult(SignalOutput{
		Source:      res.Source.Name,
		Destination: res.Destination.Name,
		BatchType:   string(res.BatchType),
	})
}

func (s *Server) handleStep(ctx context.Context, _ *mcp.CallToolRequest, input StepInput) (*mcp.CallToolResult, StepOutput, error) {
	bp, err := s.config.Personalizer.Blueprint(ctx, blueprint.SourceFor(input.Algorithm, input.CustomID))
	if err != nil {
		return toolError("Failed to resolve blueprint: %v", err), StepOutput{}, nil
	}

	sig, ok := bp.Signals().Lookup(input.Signal)
	if !ok {
		return toolError("Unknown signal %q", input.Signal), StepOutput{}, nil
	}

	state := input.State
	if state == "" {
		state = blueprint.InitialStateSentinel
	}

	res, err := bp.Step(state, sig)
	if err != nil {
		return toolError("Failed to step: %v", err), StepOutput{}, nil
	}

	return toolResult(StepOutput{
		Source:      res.Source.Name,
		Destination: res.Destination.Name,
		BatchType:   string(res.BatchType),
		Params:      res.Params,
	})
}
