package models

import "time"

// Event is the closed set of values that flow through the pipeline.
// Only types declared in this file implement it.
type Event interface {
	isEvent()
}

// UtteranceReceived carries one finalized utterance from the upstream source.
type UtteranceReceived struct {
	Text string
	At   time.Time
}

// InferenceReady requests a model turn over the given context snapshot.
type InferenceReady struct {
	Messages []Message
}

// TurnStart opens a streamed assistant turn.
type TurnStart struct{}

// TextDelta is a fragment of streamed assistant text.
type TextDelta struct {
	Text string
}

// TurnEnd closes a streamed assistant turn.
type TurnEnd struct{}

// ToolCallRequested is emitted when the model asks for a tool invocation.
type ToolCallRequested struct {
	Call ToolCall
}

// ToolCallResult is the answer produced by a tool handler.
type ToolCallResult struct {
	Name   string
	Result ToolResult
}

// Tick marks one pass of the pipeline loop.
type Tick struct {
	At time.Time
}

func (UtteranceReceived) isEvent() {}
func (InferenceReady) isEvent()    {}
func (TurnStart) isEvent()         {}
func (TextDelta) isEvent()         {}
func (TurnEnd) isEvent()           {}
func (ToolCallRequested) isEvent() {}
func (ToolCallResult) isEvent()    {}
func (Tick) isEvent()              {}

// EventName returns a short stable name for logging.
func EventName(e Event) string {
	switch e.(type) {
	case UtteranceReceived:
		return "utterance_received"
	case InferenceReady:
		return "inference_ready"
	case TurnStart:
		return "turn_start"
	case TextDelta:
		return "text_delta"
	case TurnEnd:
		return "turn_end"
	case ToolCallRequested:
		return "tool_call_requested"
	case ToolCallResult:
		return "tool_call_result"
	case Tick:
		return "tick"
	default:
		return "unknown"
	}
}
