// Package conversation assembles the canonical message history of a session.
//
// A Context is written by three producers: the Gate (accepted utterances), the
// Injector (follow-up prompts) and the Collector (completed assistant turns).
// All three run on the pipeline goroutine; the lock only exists so that the
// control API can read a consistent snapshot.
package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// AppendHook observes every message committed to a Context, in order.
type AppendHook func(models.Message)

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) ContextOption {
	return func(c *Context) { c.now = now }
}

// WithAppendHook registers a hook called after each Append.
func WithAppendHook(h AppendHook) ContextOption {
	return func(c *Context) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// Context is the ordered message log of one conversation, led by a fixed system preamble.
type Context struct {
	mu       sync.RWMutex
	system   models.Message
	messages []models.Message
	now      func() time.Time
	hooks    []AppendHook
}

// NewContext creates a Context whose first message is the given system preamble.
func NewContext(system string, opts ...ContextOption) *Context {
	c := &Context{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.system = models.Message{Role: models.RoleSystem, Content: system, Timestamp: c.now()}
	return c
}

// Append commits a user or assistant message. The system role is reserved for the preamble.
func (c *Context) Append(role models.Role, content string) (models.Message, error) {
	if err := role.Validate(); err != nil {
		return models.Message{}, err
	}
	if role == models.RoleSystem {
		return models.Message{}, fmt.Errorf("system message cannot be appended after the preamble")
	}
	msg := models.Message{Role: role, Content: content, Timestamp: c.now()}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	hooks := c.hooks
	c.mu.Unlock()

	for _, h := range hooks {
		h(msg)
	}
	return msg, nil
}

// Seed restores earlier history without invoking append hooks.
// System messages in history are skipped.
func (c *Context) Seed(history []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}
		c.messages = append(c.messages, m)
	}
	slog.Debug("Context.Seed: restored history", "count", len(c.messages))
}

// Messages returns a copy of the full log, system preamble first.
func (c *Context) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, 0, len(c.messages)+1)
	out = append(out, c.system)
	return append(out, c.messages...)
}

// Len returns the number of messages including the system preamble.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages) + 1
}

// Last returns the most recent message, which is the preamble for an empty conversation.
func (c *Context) Last() models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return c.system
	}
	return c.messages[len(c.messages)-1]
}
