// Package models defines the core data structures shared across JarvisPipe components.
package models

import (
	"fmt"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem is the fixed preamble that leads every context.
	RoleSystem Role = "system"
	// RoleUser is an accepted utterance or an injected follow-up prompt.
	RoleUser Role = "user"
	// RoleAssistant is one completed assistant turn.
	RoleAssistant Role = "assistant"
)

// Validate reports whether r is one of the known roles.
func (r Role) Validate() error {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("invalid message role: %q", r)
	}
}

// Message is a single entry of the conversation log. Insertion order is conversation order.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful request.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed request.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates the utterance was accepted by the gate.
	APIStatusAccepted APIStatus = "accepted"
	// APIStatusIgnored indicates the utterance was dropped by the gate.
	APIStatusIgnored APIStatus = "ignored"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Gated creates the response for a submitted utterance.
func Gated(accepted bool) APIResponse {
	status := APIStatusIgnored
	if accepted {
		status = APIStatusAccepted
	}
	return NewAPIResponseBuilder().WithStatus(status).Build()
}
