// Package agent implements the bounded multi-turn tool loop that
// drives one job: model call, tool execution, feed results back,
// repeat until the model settles or the step cap is reached.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smartfolderhq/smartfolder/internal/llm"
	"github.com/smartfolderhq/smartfolder/internal/tools"
)

// ToolResult records one tool invocation and its payload, in
// execution order.
type ToolResult struct {
	Tool    string `json:"tool"`
	Args    string `json:"args,omitempty"`
	Payload string `json:"payload"`
}

// Outcome is the result of one job's agent loop.
type Outcome struct {
	FinalText   string       `json:"finalText,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
	Steps       int          `json:"steps"`
	// CapReached is set when the loop stopped because the step cap
	// ran out rather than the model finishing.
	CapReached bool `json:"capReached,omitempty"`
}

// Driver runs the loop against one model and one tool registry.
type Driver struct {
	client   llm.Client
	registry *tools.Registry
	model    string
	stepCap  int
	logger   *slog.Logger
}

// NewDriver creates a driver. stepCap bounds the number of model
// round-trips per job.
func NewDriver(client llm.Client, registry *tools.Registry, model string, stepCap int, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		client:   client,
		registry: registry,
		model:    model,
		stepCap:  stepCap,
		logger:   logger.With("component", "agent", "model", model),
	}
}

// Run drives the loop for one job. Per-tool failures are fed back to
// the model as tool messages and never abort the loop; provider
// errors do.
func (d *Driver) Run(ctx context.Context, systemPrompt string, userMessage llm.Message) (*Outcome, error) {
	messages := []llm.Message{
		llm.TextMessage("system", systemPrompt),
		userMessage,
	}
	definitions := d.registry.Definitions()

	outcome := &Outcome{}
	for step := 1; step <= d.stepCap; step++ {
		outcome.Steps = step
		d.logger.Debug("model round-trip", "step", step, "messages", len(messages))

		resp, err := d.client.Chat(ctx, d.model, messages, definitions)
		if err != nil {
			return outcome, wrapProviderError(err, d.model)
		}
		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			outcome.FinalText = strings.TrimSpace(resp.Message.Content)
			return outcome, nil
		}

		// Execute in the order the model produced; later calls may
		// reference files renamed by earlier ones.
		for _, call := range resp.Message.ToolCalls {
			payload := d.executeCall(ctx, call)
			outcome.ToolResults = append(outcome.ToolResults, ToolResult{
				Tool:    call.Function.Name,
				Args:    encodeArgs(call.Function.Arguments),
				Payload: payload,
			})
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    payload,
				ToolCallID: call.ID,
			})
		}
	}

	outcome.CapReached = true
	d.logger.Warn("tool-call budget exhausted", "steps", outcome.Steps)
	return outcome, nil
}

func (d *Driver) executeCall(ctx context.Context, call llm.ToolCall) string {
	args := encodeArgs(call.Function.Arguments)
	payload, err := d.registry.Execute(ctx, call.Function.Name, args)
	if err != nil {
		// Unknown tool: tell the model which tools exist instead of
		// failing the job.
		return fmt.Sprintf(`{"ok":false,"error":"ToolUnavailable","message":%q}`, err.Error())
	}
	return payload
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// wrapProviderError adds the diagnostics a folder owner needs when a
// job dies at the model boundary.
func wrapProviderError(err error, model string) error {
	return fmt.Errorf("model call failed for %s (possible causes: the file type is not supported by this model, the model id is misconfigured, or the gateway is unreachable): %w", model, err)
}
