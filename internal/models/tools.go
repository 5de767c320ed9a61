package models

import (
	"encoding/json"
	"fmt"
)

// ToolCall represents a tool call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`       // Tool call ID assigned by the model
	Type     string       `json:"type"`     // Always "function"
	Function FunctionCall `json:"function"` // Function details
}

// FunctionCall represents the function details within a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Validate ensures the tool call is structurally usable.
func (tc ToolCall) Validate() error {
	if tc.Function.Name == "" {
		return fmt.Errorf("tool call %q has no function name", tc.ID)
	}
	if len(tc.Function.Arguments) > 0 && !json.Valid(tc.Function.Arguments) {
		return fmt.Errorf("tool call %q has malformed arguments", tc.ID)
	}
	return nil
}

// ToolResult represents the result of executing a tool call.
type ToolResult struct {
	ToolCallID string      `json:"tool_call_id"`    // ID of the tool call this responds to
	Success    bool        `json:"success"`         // Whether the tool execution succeeded
	Message    string      `json:"message"`         // Human-readable result message
	Error      string      `json:"error,omitempty"` // Error message if success is false
	Data       interface{} `json:"data,omitempty"`  // Additional structured data
}

// ToolSuccess builds a successful result.
func ToolSuccess(message string, data interface{}) ToolResult {
	return ToolResult{Success: true, Message: message, Data: data}
}

// ToolFailure builds a failed result from an error.
func ToolFailure(message string, err error) ToolResult {
	r := ToolResult{Success: false, Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Content serializes the result for a tool message sent back to the model.
func (r ToolResult) Content() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}
