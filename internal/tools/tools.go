package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartfolderhq/smartfolder/internal/fsx"
)

// Tool represents a callable tool. Parameters is the single
// authoritative JSON schema for the tool; Definitions and ValidateArgs
// both derive from it.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Mutating tools are skipped under dry-run.
	Mutating bool `json:"-"`

	Handler func(ctx context.Context, args map[string]any) (map[string]any, error) `json:"-"`
}

// Notifier receives self-change notifications for paths a tool wrote,
// renamed, or created, so the watcher does not re-process the agent's
// own output.
type Notifier interface {
	Mark(path string)
}

type noopNotifier struct{}

func (noopNotifier) Mark(string) {}

// Registry holds the tools available to one folder's jobs. All paths
// the model supplies are resolved against root and must stay inside
// it.
type Registry struct {
	root    string
	dryRun  bool
	notify  Notifier
	logger  *slog.Logger
	tools   map[string]*Tool
	order   []string
	allowed map[string]bool
}

// NewRegistry creates a tool registry sandboxed to root. allowedTools
// filters the registered set; nil or empty allows everything. notify
// may be nil.
func NewRegistry(root string, allowedTools []string, dryRun bool, notify Notifier, logger *slog.Logger) *Registry {
	if notify == nil {
		notify = noopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		root:   root,
		dryRun: dryRun,
		notify: notify,
		logger: logger.With("component", "tools"),
		tools:  make(map[string]*Tool),
	}
	if len(allowedTools) > 0 {
		r.allowed = make(map[string]bool, len(allowedTools))
		for _, id := range allowedTools {
			r.allowed[id] = true
		}
	}
	r.registerFileTools()
	r.registerTextTools()
	return r
}

// Register adds a tool to the registry, preserving registration order.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, honoring the allowed filter.
func (r *Registry) Get(name string) *Tool {
	if r.allowed != nil && !r.allowed[name] {
		return nil
	}
	return r.tools[name]
}

// Definitions returns the tool definitions in model wire format, in
// registration order.
func (r *Registry) Definitions() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.Get(name)
		if t == nil {
			continue
		}
		result = append(result, ToModelToolDef(t))
	}
	return result
}

// ToModelToolDef converts a tool's schema to the provider wire shape.
func ToModelToolDef(t *Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		},
	}
}

// ValidateArgs checks args against a tool parameter schema: required
// keys must be present and typed values must match their declared
// type. No reflection; only the schema subset the registry uses.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			v, present := args[key]
			if !present || v == nil {
				return fmt.Errorf("missing required argument %q", key)
			}
			if s, isStr := v.(string); isStr && s == "" {
				return fmt.Errorf("required argument %q is empty", key)
			}
		}
	}
	props, _ := schema["properties"].(map[string]any)
	for key, v := range args {
		prop, ok := props[key].(map[string]any)
		if !ok {
			return fmt.Errorf("unexpected argument %q", key)
		}
		if v == nil {
			continue
		}
		switch prop["type"] {
		case "string":
			if _, ok := v.(string); !ok {
				return fmt.Errorf("argument %q must be a string", key)
			}
		case "integer":
			switch n := v.(type) {
			case float64:
				if n != float64(int64(n)) {
					return fmt.Errorf("argument %q must be an integer", key)
				}
			case int:
			default:
				return fmt.Errorf("argument %q must be an integer", key)
			}
		case "boolean":
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("argument %q must be a boolean", key)
			}
		}
	}
	return nil
}

// Execute runs a tool by name and always returns a JSON payload
// string for the model. Tool-level failures come back as {ok:false}
// payloads; the only Go error is an unknown tool name.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return r.failure(name, &InvalidArgsError{Tool: name, Reason: err.Error()}), nil
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	started := time.Now()
	payload, err := r.run(ctx, tool, args)
	duration := time.Since(started)

	var out string
	if err != nil {
		out = r.failure(name, err)
	} else {
		out = encodePayload(payload)
	}

	r.logger.Info("tool invocation",
		"tool", name,
		"args", sanitizeArgs(args),
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
		"output", truncateForLog(out, 200),
	)
	return out, nil
}

func (r *Registry) run(ctx context.Context, tool *Tool, args map[string]any) (map[string]any, error) {
	if err := ValidateArgs(tool.Parameters, args); err != nil {
		return nil, &InvalidArgsError{Tool: tool.Name, Reason: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.dryRun && tool.Mutating {
		return map[string]any{
			"tool":    tool.Name,
			"skipped": true,
			"reason":  "dry_run",
		}, nil
	}
	return tool.Handler(ctx, args)
}

// failure renders an error as an {ok:false} payload the model can
// read and recover from.
func (r *Registry) failure(tool string, err error) string {
	return encodePayload(map[string]any{
		"ok":      false,
		"tool":    tool,
		"error":   errorCode(err),
		"message": err.Error(),
	})
}

func encodePayload(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are built from strings, numbers, and bools.
		return fmt.Sprintf(`{"ok":false,"error":"Internal","message":%q}`, err.Error())
	}
	return string(data)
}

func errorCode(err error) string {
	var (
		escape  *fsx.PathEscapeError
		size    *fsx.SizeExceededError
		exists  *fsx.ExistsError
		missing *fsx.MissingError
		extMis  *ExtensionMismatchError
		binMis  *BinaryToolMisuseError
		badArgs *InvalidArgsError
	)
	switch {
	case errors.As(err, &escape):
		return "PathEscape"
	case errors.As(err, &size):
		return "FileTooLarge"
	case errors.As(err, &exists):
		return "ExistsAlready"
	case errors.As(err, &missing):
		return "Missing"
	case errors.As(err, &extMis):
		return "ExtensionMismatch"
	case errors.As(err, &binMis):
		return "BinaryToolMisuse"
	case errors.As(err, &badArgs):
		return "InvalidArgs"
	default:
		return "ToolError"
	}
}

// sanitizeArgs trims long string values (file contents, replacement
// text) so invocation logs stay readable.
func sanitizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = truncateForLog(s, 120)
			continue
		}
		out[k] = v
	}
	return out
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
