package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockTools(t *testing.T) {
	s := NewSystemTools()
	s.now = func() time.Time { return time.Date(2025, 3, 9, 7, 5, 3, 0, time.Local) }
	r, err := NewRegistryWith(s)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-09 07:05:03", r.Execute(context.Background(), call("get_current_time", "")).Message)
	assert.Equal(t, "2025-03-09", r.Execute(context.Background(), call("get_current_date", "")).Message)
}

func TestResourceUsage(t *testing.T) {
	s := NewSystemTools()
	s.cpuInterval = 10 * time.Millisecond
	r, err := NewRegistryWith(s)
	require.NoError(t, err)

	res := r.Execute(context.Background(), call("get_resource_usage", "{}"))
	require.True(t, res.Success, res.Error)
	usage, ok := res.Data.(ResourceUsage)
	require.True(t, ok)
	assert.Greater(t, usage.RAM, 0.0)
	assert.GreaterOrEqual(t, usage.CPU, 0.0)
}
