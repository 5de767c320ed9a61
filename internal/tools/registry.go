// Package tools holds the functions the model may call and dispatches its tool calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/JarvisPipe/internal/metrics"
	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// Handler executes one tool call. Argument problems are reported as a failed
// ToolResult; a returned error means the tool itself broke.
type Handler func(ctx context.Context, args json.RawMessage) (models.ToolResult, error)

// Tool pairs the definition sent to the model with its handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     Handler
}

// Definition renders the tool for a chat completion request.
func (t Tool) Definition() openai.ChatCompletionToolParam {
	params := t.Parameters
	if params == nil {
		params = objectSchema(nil)
	}
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(params),
		},
	}
}

// Registry maps tool names to tools. Registration order is preserved in Definitions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Each name has exactly one handler.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool must have a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Names lists registered tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns the tool list for a chat completion request.
func (r *Registry) Definitions() []openai.ChatCompletionToolParam {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]openai.ChatCompletionToolParam, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs a tool call and always produces a result that can be returned to the model.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	result := r.execute(ctx, call)
	result.ToolCallID = call.ID
	metrics.ToolCallsTotal.WithLabelValues(call.Function.Name, strconv.FormatBool(result.Success)).Inc()
	slog.Info("Registry.Execute: tool finished",
		"tool", call.Function.Name,
		"toolCallID", call.ID,
		"success", result.Success,
		"args", formatArgsForLog(call.Function.Arguments))
	return result
}

func (r *Registry) execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	if err := call.Validate(); err != nil {
		return models.ToolFailure("Invalid tool call", err)
	}
	r.mu.RLock()
	t, ok := r.tools[call.Function.Name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolFailure("Unknown tool", fmt.Errorf("no tool named %q", call.Function.Name))
	}
	args := call.Function.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := t.Handler(ctx, args)
	if err != nil {
		slog.Error("Registry.execute: tool failed", "tool", t.Name, "error", err)
		return models.ToolFailure(fmt.Sprintf("Tool %s failed", t.Name), err)
	}
	return result
}

const argsLogLimit = 1024

func formatArgsForLog(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > argsLogLimit {
		return s[:argsLogLimit] + "...(truncated)"
	}
	return s
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}
