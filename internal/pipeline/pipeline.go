// Package pipeline runs the single-threaded conversation loop: utterances pass the
// wake-word gate, accepted turns are sent to the model, streamed replies are
// collected into the context and due follow-up prompts are drained once per frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/conversation"
	"github.com/BTreeMap/JarvisPipe/internal/genai"
	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/openai/openai-go"
)

// DefaultTick is how often the loop drains follow-up prompts while idle.
const DefaultTick = 250 * time.Millisecond

// ErrStopped is returned by Submit once Run has exited.
var ErrStopped = errors.New("pipeline stopped")

// Responder streams a model reply for a conversation.
type Responder interface {
	Respond(ctx context.Context, history []models.Message, tools []openai.ChatCompletionToolParam, sink genai.Sink) error
}

// ToolExecutor resolves tool calls.
type ToolExecutor interface {
	Definitions() []openai.ChatCompletionToolParam
	Execute(ctx context.Context, call models.ToolCall) models.ToolResult
}

// Opts holds optional pipeline settings.
type Opts struct {
	Tick      time.Duration
	InboxSize int
}

// Option configures a Pipeline.
type Option func(*Opts)

// WithTick sets the idle drain interval.
func WithTick(d time.Duration) Option {
	return func(o *Opts) { o.Tick = d }
}

// WithInboxSize sets how many submitted utterances may wait while a turn is in flight.
func WithInboxSize(n int) Option {
	return func(o *Opts) { o.InboxSize = n }
}

// Pipeline owns the conversation context; only its Run goroutine mutates it.
type Pipeline struct {
	conv      *conversation.Context
	gate      *conversation.Gate
	collector *conversation.Collector
	injector  *conversation.Injector
	engine    Responder
	tools     ToolExecutor

	tick  time.Duration
	inbox chan models.Event
	done  chan struct{}
}

// New wires a pipeline. tools may be nil when the model should not call functions.
func New(conv *conversation.Context, gate *conversation.Gate, collector *conversation.Collector,
	injector *conversation.Injector, engine Responder, tools ToolExecutor, opts ...Option) *Pipeline {
	o := Opts{Tick: DefaultTick, InboxSize: 64}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	return &Pipeline{
		conv:      conv,
		gate:      gate,
		collector: collector,
		injector:  injector,
		engine:    engine,
		tools:     tools,
		tick:      o.Tick,
		inbox:     make(chan models.Event, o.InboxSize),
		done:      make(chan struct{}),
	}
}

// Context returns the conversation owned by the pipeline.
func (p *Pipeline) Context() *conversation.Context { return p.conv }

// Submit hands a finalized utterance to the loop. It blocks while the inbox is full.
func (p *Pipeline) Submit(ctx context.Context, text string) error {
	ev := models.UtteranceReceived{Text: text, At: time.Now()}
	select {
	case p.inbox <- ev:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes frames until ctx is cancelled. Every processed frame is followed by a tick
// that drains due follow-up prompts; the ticker keeps draining while no input arrives.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	slog.Info("Pipeline.Run: started", "tick", p.tick)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Pipeline.Run: stopping")
			return nil
		case ev := <-p.inbox:
			p.handle(ctx, ev)
			p.handle(ctx, models.Tick{At: time.Now()})
		case t := <-ticker.C:
			p.handle(ctx, models.Tick{At: t})
		}
	}
}

// handle dispatches one event. Every Event variant has a case.
func (p *Pipeline) handle(ctx context.Context, ev models.Event) {
	switch e := ev.(type) {
	case models.UtteranceReceived:
		if req, ok := p.gate.Process(e.Text); ok {
			p.handle(ctx, req)
		}
	case models.InferenceReady:
		p.infer(ctx, e)
	case models.TurnStart, models.TextDelta, models.TurnEnd:
		if msg, ok := p.collector.Handle(e); ok {
			slog.Debug("Pipeline.handle: assistant turn committed", "length", len(msg.Content))
		}
	case models.ToolCallRequested:
		slog.Info("Pipeline.handle: tool call requested", "tool", e.Call.Function.Name, "toolCallID", e.Call.ID)
	case models.ToolCallResult:
		slog.Info("Pipeline.handle: tool call resolved", "tool", e.Name, "success", e.Result.Success)
	case models.Tick:
		for _, req := range p.injector.DrainInto(p.conv) {
			p.handle(ctx, req)
		}
	default:
		panic(fmt.Sprintf("pipeline: unhandled event %T", ev))
	}
}

// infer runs one model response over the context as it stands now, which includes
// replies committed since the request was raised.
func (p *Pipeline) infer(ctx context.Context, req models.InferenceReady) {
	if ctx.Err() != nil {
		return
	}
	history := p.conv.Messages()
	slog.Debug("Pipeline.infer: running inference", "requested", len(req.Messages), "messages", len(history))

	var defs []openai.ChatCompletionToolParam
	if p.tools != nil {
		defs = p.tools.Definitions()
	}
	if err := p.engine.Respond(ctx, history, defs, &turnSink{ctx: ctx, p: p}); err != nil {
		p.collector.Abort()
		if ctx.Err() == nil {
			slog.Error("Pipeline.infer: inference failed", "error", err)
		}
	}
}

// turnSink feeds a model response back through the pipeline's own dispatch.
type turnSink struct {
	ctx context.Context
	p   *Pipeline
}

func (s *turnSink) Emit(ev models.Event) { s.p.handle(s.ctx, ev) }

func (s *turnSink) Resolve(ctx context.Context, call models.ToolCall) models.ToolResult {
	s.p.handle(ctx, models.ToolCallRequested{Call: call})
	var result models.ToolResult
	if s.p.tools == nil {
		result = models.ToolFailure("No tools are available", nil)
		result.ToolCallID = call.ID
	} else {
		result = s.p.tools.Execute(ctx, call)
	}
	s.p.handle(ctx, models.ToolCallResult{Name: call.Function.Name, Result: result})
	return result
}
