package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/shirou/gopsutil/v4/process"
)

// SystemTools answers clock and resource questions.
type SystemTools struct {
	now         func() time.Time
	cpuInterval time.Duration
	pid         int32
}

// NewSystemTools reports on the current process.
func NewSystemTools() *SystemTools {
	return &SystemTools{now: time.Now, cpuInterval: 200 * time.Millisecond, pid: int32(os.Getpid())}
}

func (s *SystemTools) Tools() []Tool {
	return []Tool{
		{Name: "get_current_time", Description: "Get the current local time.", Handler: s.currentTime},
		{Name: "get_current_date", Description: "Get the current local date.", Handler: s.currentDate},
		{Name: "get_resource_usage", Description: "Get RAM (MB) and CPU (percent) used by the assistant process.", Handler: s.resourceUsage},
	}
}

func (s *SystemTools) currentTime(context.Context, json.RawMessage) (models.ToolResult, error) {
	return models.ToolSuccess(s.now().Format("2006-01-02 15:04:05"), nil), nil
}

func (s *SystemTools) currentDate(context.Context, json.RawMessage) (models.ToolResult, error) {
	return models.ToolSuccess(s.now().Format("2006-01-02"), nil), nil
}

// ResourceUsage is the payload of get_resource_usage.
type ResourceUsage struct {
	RAM float64 `json:"ram"`
	CPU float64 `json:"cpu"`
}

func (s *SystemTools) resourceUsage(ctx context.Context, _ json.RawMessage) (models.ToolResult, error) {
	p, err := process.NewProcessWithContext(ctx, s.pid)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("inspecting process %d: %w", s.pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("reading memory info: %w", err)
	}
	cpu, err := p.PercentWithContext(ctx, s.cpuInterval)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("sampling cpu: %w", err)
	}
	usage := ResourceUsage{RAM: float64(mem.RSS) / 1024 / 1024, CPU: cpu}
	return models.ToolSuccess(fmt.Sprintf("RAM %.1f MB, CPU %.1f%%", usage.RAM, usage.CPU), usage), nil
}
