package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/conversation"
	"github.com/BTreeMap/JarvisPipe/internal/genai"
	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/openai/openai-go"
)

// scriptedEngine replies with fixed text and optionally one tool call first.
type scriptedEngine struct {
	mu       sync.Mutex
	reply    string
	toolCall *models.ToolCall
	seen     [][]models.Message
	results  []models.ToolResult
}

func (e *scriptedEngine) Respond(ctx context.Context, history []models.Message, _ []openai.ChatCompletionToolParam, sink genai.Sink) error {
	e.mu.Lock()
	e.seen = append(e.seen, history)
	call := e.toolCall
	e.mu.Unlock()

	if call != nil {
		sink.Emit(models.TurnStart{})
		sink.Emit(models.TurnEnd{})
		res := sink.Resolve(ctx, *call)
		e.mu.Lock()
		e.results = append(e.results, res)
		e.mu.Unlock()
	}
	sink.Emit(models.TurnStart{})
	for _, part := range strings.SplitAfter(e.reply, " ") {
		sink.Emit(models.TextDelta{Text: part})
	}
	sink.Emit(models.TurnEnd{})
	return nil
}

func (e *scriptedEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

type fakeTools struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTools) Definitions() []openai.ChatCompletionToolParam { return nil }

func (f *fakeTools) Execute(_ context.Context, call models.ToolCall) models.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call.Function.Name)
	return models.ToolResult{ToolCallID: call.ID, Success: true, Message: "ok"}
}

type rig struct {
	p        *Pipeline
	conv     *conversation.Context
	injector *conversation.Injector
	engine   *scriptedEngine
	tools    *fakeTools
}

func start(t *testing.T, engine *scriptedEngine) *rig {
	t.Helper()
	conv := conversation.NewContext("You are Jarvis.")
	injector := conversation.NewInjector()
	tools := &fakeTools{}
	p := New(conv,
		conversation.NewGate(conv, conversation.DefaultGateConfig()),
		conversation.NewCollector(conv, nil),
		injector, engine, tools, WithTick(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return &rig{p: p, conv: conv, injector: injector, engine: engine, tools: tools}
}

func waitForLen(t *testing.T, conv *conversation.Context, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for conv.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("context has %d messages, want %d", conv.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var ignoreTime = cmpopts.IgnoreFields(models.Message{}, "Timestamp")

func TestAcceptedUtteranceProducesThreeMessages(t *testing.T) {
	r := start(t, &scriptedEngine{reply: "It is noon."})

	if err := r.p.Submit(context.Background(), "hey jarvis what time is it"); err != nil {
		t.Fatal(err)
	}
	waitForLen(t, r.conv, 3)

	want := []models.Message{
		{Role: models.RoleSystem, Content: "You are Jarvis."},
		{Role: models.RoleUser, Content: "hey jarvis what time is it"},
		{Role: models.RoleAssistant, Content: "It is noon."},
	}
	if diff := cmp.Diff(want, r.conv.Messages(), ignoreTime); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectedUtteranceNeverReachesModel(t *testing.T) {
	r := start(t, &scriptedEngine{reply: "unused"})

	if err := r.p.Submit(context.Background(), "what time is it"); err != nil {
		t.Fatal(err)
	}
	// a later accepted utterance proves the first was fully processed
	if err := r.p.Submit(context.Background(), "jarvis are you there"); err != nil {
		t.Fatal(err)
	}
	waitForLen(t, r.conv, 3)
	if got := r.engine.calls(); got != 1 {
		t.Errorf("engine called %d times, want 1", got)
	}
	if got := r.conv.Messages()[1].Content; got != "jarvis are you there" {
		t.Errorf("first user message = %q", got)
	}
}

func TestInjectedPromptIsDrainedOnTick(t *testing.T) {
	r := start(t, &scriptedEngine{reply: "Time to stretch."})

	r.injector.Enqueue("Remind me to stretch")
	waitForLen(t, r.conv, 3)

	msgs := r.conv.Messages()
	if msgs[1].Role != models.RoleUser || msgs[1].Content != "Remind me to stretch" {
		t.Errorf("injected message = %+v", msgs[1])
	}
	if msgs[2].Content != "Time to stretch." {
		t.Errorf("reply = %q", msgs[2].Content)
	}
}

func TestToolCallsResolveThroughExecutor(t *testing.T) {
	call := &models.ToolCall{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: "list_actions", Arguments: json.RawMessage(`{}`)}}
	r := start(t, &scriptedEngine{reply: "Nothing pending.", toolCall: call})

	if err := r.p.Submit(context.Background(), "jarvis list my alarms"); err != nil {
		t.Fatal(err)
	}
	waitForLen(t, r.conv, 3)

	r.tools.mu.Lock()
	defer r.tools.mu.Unlock()
	if diff := cmp.Diff([]string{"list_actions"}, r.tools.calls); diff != "" {
		t.Errorf("tool calls (-want +got):\n%s", diff)
	}
	// the tool-only turn produced no text, so only the final reply is committed
	if r.conv.Len() != 3 {
		t.Errorf("context len = %d, want 3", r.conv.Len())
	}
}

func TestSubmitAfterStop(t *testing.T) {
	conv := conversation.NewContext("sys")
	p := New(conv, conversation.NewGate(conv, conversation.DefaultGateConfig()),
		conversation.NewCollector(conv, nil), conversation.NewInjector(), &scriptedEngine{}, nil, WithInboxSize(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(context.Background(), "jarvis"); err != ErrStopped {
		t.Errorf("Submit after stop = %v, want ErrStopped", err)
	}
}
