package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxRunsSnippets(t *testing.T) {
	sb := NewSandbox(time.Second)

	out, err := sb.Run(context.Background(), "import \"fmt\"\nfmt.Println(6 * 7)")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	prog := `package main

import (
	"fmt"
	"strings"
)

func main() {
	fmt.Print(strings.ToUpper("jarvis"))
}
`
	out, err = sb.Run(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, "JARVIS", out)
}

func TestSandboxRejectsUnsafeImports(t *testing.T) {
	sb := NewSandbox(time.Second)
	for _, code := range []string{
		"import \"os\"\nos.Remove(\"x\")",
		"import (\n\t\"fmt\"\n\t\"os/exec\"\n)\nfmt.Println(exec.Command)",
		"import \"net/http\"\nhttp.Get(\"http://example.com\")",
	} {
		_, err := sb.Run(context.Background(), code)
		require.Error(t, err, code)
		assert.Contains(t, err.Error(), "is not allowed")
	}
}

func TestSandboxTimesOut(t *testing.T) {
	sb := NewSandbox(50 * time.Millisecond)
	_, err := sb.Run(context.Background(), "import \"time\"\ntime.Sleep(2 * time.Second)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunGoCodeTool(t *testing.T) {
	r, err := NewRegistryWith(NewSandbox(time.Second))
	require.NoError(t, err)

	res := r.Execute(context.Background(), call("run_go_code", `{"code":"import \"fmt\"\nfmt.Print(1+1)"}`))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "2", res.Message)

	res = r.Execute(context.Background(), call("run_go_code", `{"code":"this is not go"}`))
	assert.False(t, res.Success)
}
