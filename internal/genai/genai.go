// Package genai streams chat completions from an OpenAI-compatible endpoint
// (OpenAI, Ollama, vLLM) and runs the tool-call loop for one response.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/metrics"
	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

const (
	DefaultBaseURL       = "http://localhost:11434/v1"
	DefaultAPIKey        = "ollama"
	DefaultModel         = "qwen3:4b-instruct-2507-q4_K_M"
	DefaultMaxToolRounds = 10
)

// ErrEmptyHistory is returned when there is nothing to respond to.
var ErrEmptyHistory = errors.New("no messages to respond to")

// ChunkStream is a server-sent event stream of completion chunks.
type ChunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type streamFunc func(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream

// Sink receives the turn markers and text deltas of a response and resolves the
// tool calls the model makes along the way.
type Sink interface {
	Emit(ev models.Event)
	Resolve(ctx context.Context, call models.ToolCall) models.ToolResult
}

// Opts holds client configuration.
type Opts struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxToolRounds int
}

// Option configures the client.
type Option func(*Opts)

func WithAPIKey(key string) Option   { return func(o *Opts) { o.APIKey = key } }
func WithBaseURL(url string) Option  { return func(o *Opts) { o.BaseURL = url } }
func WithModel(model string) Option  { return func(o *Opts) { o.Model = model } }
func WithMaxToolRounds(n int) Option { return func(o *Opts) { o.MaxToolRounds = n } }

// Client streams responses for a conversation.
type Client struct {
	open      streamFunc
	model     string
	maxRounds int
}

// NewClient creates a client for an OpenAI-compatible endpoint.
func NewClient(opts ...Option) *Client {
	o := Opts{APIKey: DefaultAPIKey, BaseURL: DefaultBaseURL, Model: DefaultModel, MaxToolRounds: DefaultMaxToolRounds}
	for _, opt := range opts {
		opt(&o)
	}
	cli := openai.NewClient(option.WithAPIKey(o.APIKey), option.WithBaseURL(o.BaseURL))
	open := func(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream {
		return cli.Chat.Completions.NewStreaming(ctx, params)
	}
	slog.Debug("genai.NewClient: client configured", "baseURL", o.BaseURL, "model", o.Model)
	return newClient(open, o)
}

func newClient(open streamFunc, o Opts) *Client {
	if o.MaxToolRounds <= 0 {
		o.MaxToolRounds = DefaultMaxToolRounds
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	return &Client{open: open, model: o.Model, maxRounds: o.MaxToolRounds}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Respond streams the model's reply to history. Every model round is framed by
// TurnStart and TurnEnd; a failed stream ends without TurnEnd so its partial text
// is never committed. Tool calls are resolved by sink and fed back until the model
// answers without tools or the round limit is reached.
func (c *Client) Respond(ctx context.Context, history []models.Message, tools []openai.ChatCompletionToolParam, sink Sink) error {
	if len(history) == 0 {
		return ErrEmptyHistory
	}
	start := time.Now()
	defer func() { metrics.InferenceDuration.Observe(time.Since(start).Seconds()) }()

	msgs := toParams(history)
	for round := 1; round <= c.maxRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(c.model),
			Messages: msgs,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		sink.Emit(models.TurnStart{})
		text, calls, err := c.stream(ctx, params, sink)
		if err != nil {
			slog.Error("Client.Respond: stream failed", "round", round, "error", err)
			return fmt.Errorf("streaming completion: %w", err)
		}
		sink.Emit(models.TurnEnd{})
		slog.Debug("Client.Respond: round complete", "round", round, "textLength", len(text), "toolCallCount", len(calls))

		if len(calls) == 0 {
			return nil
		}
		msgs = append(msgs, assistantWithTools(text, calls))
		for _, call := range calls {
			result := sink.Resolve(ctx, call)
			msgs = append(msgs, openai.ToolMessage(result.Content(), call.ID))
		}
	}
	slog.Warn("Client.Respond: hit maximum tool rounds", "maxRounds", c.maxRounds)
	return nil
}

// stream consumes one completion, forwarding text deltas as they arrive and
// assembling tool calls from their indexed fragments.
func (c *Client) stream(ctx context.Context, params openai.ChatCompletionNewParams, sink Sink) (string, []models.ToolCall, error) {
	s := c.open(ctx, params)
	defer s.Close()

	var text strings.Builder
	acc := newToolCallAccumulator()
	for s.Next() {
		chunk := s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			sink.Emit(models.TextDelta{Text: delta.Content})
		}
		for _, tc := range delta.ToolCalls {
			acc.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
	}
	if err := s.Err(); err != nil {
		return "", nil, err
	}
	return text.String(), acc.calls(), nil
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

type toolCallAccumulator struct {
	byIndex map[int64]*partialCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int64]*partialCall)}
}

func (a *toolCallAccumulator) add(index int64, id, name, args string) {
	p, ok := a.byIndex[index]
	if !ok {
		p = &partialCall{}
		a.byIndex[index] = p
	}
	if id != "" {
		p.id = id
	}
	if name != "" {
		p.name = name
	}
	p.args.WriteString(args)
}

func (a *toolCallAccumulator) calls() []models.ToolCall {
	indexes := make([]int64, 0, len(a.byIndex))
	for i := range a.byIndex {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	out := make([]models.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := a.byIndex[i]
		id := p.id
		if id == "" {
			// some local servers omit ids
			id = fmt.Sprintf("call_%d", i)
		}
		out = append(out, models.ToolCall{
			ID:   id,
			Type: "function",
			Function: models.FunctionCall{
				Name:      p.name,
				Arguments: []byte(p.args.String()),
			},
		})
	}
	return out
}

func toParams(history []models.Message) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case models.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}
	return msgs
}

func assistantWithTools(text string, calls []models.ToolCall) openai.ChatCompletionMessageParamUnion {
	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
	for _, call := range calls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		})
	}
	msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
	if text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(text)}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}
