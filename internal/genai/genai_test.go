package genai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/openai/openai-go"
)

// fakeStream replays a fixed list of chunks.
type fakeStream struct {
	chunks []openai.ChatCompletionChunk
	pos    int
	err    error
}

func (s *fakeStream) Next() bool {
	if s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *fakeStream) Current() openai.ChatCompletionChunk { return s.chunks[s.pos-1] }
func (s *fakeStream) Err() error                          { return s.err }
func (s *fakeStream) Close() error                        { return nil }

func textChunk(text string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{Choices: []openai.ChatCompletionChunkChoice{{
		Delta: openai.ChatCompletionChunkChoiceDelta{Content: text},
	}}}
}

func toolChunk(index int64, id, name, args string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{Choices: []openai.ChatCompletionChunkChoice{{
		Delta: openai.ChatCompletionChunkChoiceDelta{ToolCalls: []openai.ChatCompletionChunkChoiceDeltaToolCall{{
			Index:    index,
			ID:       id,
			Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Name: name, Arguments: args},
		}}},
	}}}
}

type recordingSink struct {
	events []models.Event
	calls  []models.ToolCall
}

func (s *recordingSink) Emit(ev models.Event) { s.events = append(s.events, ev) }

func (s *recordingSink) Resolve(_ context.Context, call models.ToolCall) models.ToolResult {
	s.calls = append(s.calls, call)
	return models.ToolSuccess("done", nil)
}

func (s *recordingSink) names() []string {
	var out []string
	for _, ev := range s.events {
		out = append(out, models.EventName(ev))
	}
	return out
}

// scripted returns a client whose rounds replay the given streams in order.
func scripted(t *testing.T, rounds ...*fakeStream) (*Client, *[]openai.ChatCompletionNewParams) {
	t.Helper()
	var seen []openai.ChatCompletionNewParams
	open := func(_ context.Context, p openai.ChatCompletionNewParams) ChunkStream {
		seen = append(seen, p)
		if len(seen) > len(rounds) {
			t.Fatalf("unexpected round %d", len(seen))
		}
		return rounds[len(seen)-1]
	}
	return newClient(open, Opts{Model: "test-model"}), &seen
}

var history = []models.Message{
	{Role: models.RoleSystem, Content: "You are Jarvis."},
	{Role: models.RoleUser, Content: "jarvis what is four point oh"},
}

func TestRespondStreamsTextTurn(t *testing.T) {
	c, seen := scripted(t, &fakeStream{chunks: []openai.ChatCompletionChunk{textChunk("4."), textChunk("0")}})
	sink := &recordingSink{}

	if err := c.Respond(context.Background(), history, nil, sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	want := []string{"turn_start", "text_delta", "text_delta", "turn_end"}
	if got := sink.names(); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(*seen) != 1 || len((*seen)[0].Messages) != 2 || (*seen)[0].Model != "test-model" {
		t.Errorf("unexpected request %+v", *seen)
	}
}

func TestRespondRunsToolRounds(t *testing.T) {
	c, seen := scripted(t,
		&fakeStream{chunks: []openai.ChatCompletionChunk{
			toolChunk(0, "call_a", "schedule_alarm", `{"minu`),
			toolChunk(0, "", "", `tes":5}`),
			toolChunk(1, "call_b", "list_actions", `{}`),
		}},
		&fakeStream{chunks: []openai.ChatCompletionChunk{textChunk("Alarm set.")}},
	)
	sink := &recordingSink{}

	if err := c.Respond(context.Background(), history, nil, sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(sink.calls) != 2 {
		t.Fatalf("resolved %d calls, want 2", len(sink.calls))
	}
	first := sink.calls[0]
	if first.ID != "call_a" || first.Function.Name != "schedule_alarm" {
		t.Errorf("first call = %+v", first)
	}
	var args map[string]int
	if err := json.Unmarshal(first.Function.Arguments, &args); err != nil || args["minutes"] != 5 {
		t.Errorf("arguments not reassembled: %s (%v)", first.Function.Arguments, err)
	}
	// system, user, assistant tool calls, two tool results
	if got := len((*seen)[1].Messages); got != 5 {
		t.Errorf("second round carried %d messages, want 5", got)
	}
	want := []string{"turn_start", "turn_end", "turn_start", "text_delta", "turn_end"}
	if got := sink.names(); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRespondStopsAtRoundLimit(t *testing.T) {
	loop := func() *fakeStream {
		return &fakeStream{chunks: []openai.ChatCompletionChunk{toolChunk(0, "", "list_actions", "{}")}}
	}
	var calls int
	open := func(context.Context, openai.ChatCompletionNewParams) ChunkStream {
		calls++
		return loop()
	}
	c := newClient(open, Opts{MaxToolRounds: 3})
	sink := &recordingSink{}
	if err := c.Respond(context.Background(), history, nil, sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if calls != 3 || len(sink.calls) != 3 {
		t.Errorf("rounds=%d resolved=%d, want 3 and 3", calls, len(sink.calls))
	}
	if sink.calls[0].ID != "call_0" {
		t.Errorf("missing id not synthesized: %q", sink.calls[0].ID)
	}
}

func TestRespondStreamErrorLeavesTurnOpen(t *testing.T) {
	c, _ := scripted(t, &fakeStream{chunks: []openai.ChatCompletionChunk{textChunk("partial")}, err: errors.New("connection reset")})
	sink := &recordingSink{}

	err := c.Respond(context.Background(), history, nil, sink)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range sink.names() {
		if name == "turn_end" {
			t.Error("failed stream must not close its turn")
		}
	}
}

func TestRespondEmptyHistory(t *testing.T) {
	c, _ := scripted(t)
	if err := c.Respond(context.Background(), nil, nil, &recordingSink{}); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("err = %v, want ErrEmptyHistory", err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
