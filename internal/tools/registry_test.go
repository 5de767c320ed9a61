package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echo",
		Handler: func(_ context.Context, args json.RawMessage) (models.ToolResult, error) {
			return models.ToolSuccess(string(args), nil), nil
		},
	}
}

func call(name, args string) models.ToolCall {
	return models.ToolCall{ID: "call_1", Type: "function", Function: models.FunctionCall{Name: name, Arguments: json.RawMessage(args)}}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("a")))
	require.NoError(t, r.Register(echoTool("b")))
	assert.Error(t, r.Register(echoTool("a")))
	assert.Error(t, r.Register(Tool{Name: "c"}))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Function.Name)
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	require.NoError(t, r.Register(Tool{
		Name: "broken",
		Handler: func(context.Context, json.RawMessage) (models.ToolResult, error) {
			return models.ToolResult{}, errors.New("disk on fire")
		},
	}))

	res := r.Execute(context.Background(), call("echo", `{"x":1}`))
	assert.True(t, res.Success)
	assert.Equal(t, `{"x":1}`, res.Message)
	assert.Equal(t, "call_1", res.ToolCallID)

	res = r.Execute(context.Background(), call("echo", ""))
	assert.Equal(t, "{}", res.Message)

	res = r.Execute(context.Background(), call("missing", "{}"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "missing")

	res = r.Execute(context.Background(), call("broken", "{}"))
	assert.False(t, res.Success)
	assert.Equal(t, "disk on fire", res.Error)

	res = r.Execute(context.Background(), call("echo", "{not json"))
	assert.False(t, res.Success)
}

func TestSecondsAcceptsNumbersAndStrings(t *testing.T) {
	cases := map[string]Seconds{
		`{"prompt":"x","delay_seconds":30}`:      30,
		`{"prompt":"x","delay_seconds":"45"}`:    45,
		`{"prompt":"x","delay_seconds":"later"}`: DefaultDelaySeconds,
	}
	for raw, want := range cases {
		var args promptArgs
		require.NoError(t, decodeArgs(json.RawMessage(raw), &args), raw)
		assert.Equal(t, want, args.DelaySeconds, raw)
	}
}

func TestStringListAcceptsSingleString(t *testing.T) {
	var args blockArgs
	require.NoError(t, decodeArgs(json.RawMessage(`{"websites":"youtube.com","minutes":5}`), &args))
	assert.Equal(t, StringList{"youtube.com"}, args.Websites)

	err := decodeArgs(json.RawMessage(`{"websites":[],"minutes":5}`), &args)
	assert.Error(t, err)
}
