package conversation

import (
	"log/slog"
	"sync"

	"github.com/BTreeMap/JarvisPipe/internal/metrics"
	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// Injector is an unbounded FIFO of follow-up prompts. Producers may call Enqueue from any
// goroutine; only the pipeline goroutine drains it.
type Injector struct {
	mu    sync.Mutex
	queue []string
}

// NewInjector creates an empty Injector.
func NewInjector() *Injector {
	return &Injector{}
}

// Enqueue adds text to the back of the queue.
func (i *Injector) Enqueue(text string) {
	i.mu.Lock()
	i.queue = append(i.queue, text)
	n := len(i.queue)
	i.mu.Unlock()
	slog.Debug("Injector.Enqueue: prompt queued", "pending", n)
}

// Len returns the number of queued prompts.
func (i *Injector) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queue)
}

// DrainInto appends every prompt queued at entry to conv as a user message, in FIFO order,
// and returns one inference request per prompt. Prompts enqueued after the snapshot wait
// for the next drain.
func (i *Injector) DrainInto(conv *Context) []models.InferenceReady {
	i.mu.Lock()
	batch := i.queue
	i.queue = nil
	i.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	ready := make([]models.InferenceReady, 0, len(batch))
	for _, text := range batch {
		if _, err := conv.Append(models.RoleUser, text); err != nil {
			slog.Error("Injector.DrainInto: failed to append prompt", "error", err)
			continue
		}
		ready = append(ready, models.InferenceReady{Messages: conv.Messages()})
	}
	metrics.InjectedPromptsTotal.Add(float64(len(ready)))
	slog.Info("Injector.DrainInto: prompts injected", "count", len(ready))
	return ready
}
