package conversation

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// Speaker receives assistant text as soon as it is streamed.
type Speaker interface {
	StartTurn()
	Say(delta string)
	FinishTurn()
}

// CollectorState is the state of a Collector.
type CollectorState int

const (
	Idle CollectorState = iota
	Streaming
)

func (s CollectorState) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

// Collector turns a stream of turn markers and text deltas into one assistant message per turn.
type Collector struct {
	conv    *Context
	speaker Speaker
	state   CollectorState
	buf     strings.Builder
}

// NewCollector creates a Collector committing into conv. speaker may be nil.
func NewCollector(conv *Context, speaker Speaker) *Collector {
	return &Collector{conv: conv, speaker: speaker}
}

// State returns the current state.
func (c *Collector) State() CollectorState { return c.state }

// Handle feeds one event to the collector. It returns the committed message, if any.
// Events other than turn markers and text deltas are ignored.
func (c *Collector) Handle(ev models.Event) (models.Message, bool) {
	switch e := ev.(type) {
	case models.TurnStart:
		c.start()
	case models.TextDelta:
		c.delta(e.Text)
	case models.TurnEnd:
		return c.end()
	}
	return models.Message{}, false
}

func (c *Collector) start() {
	if c.state == Streaming {
		slog.Warn("Collector.start: turn restarted before end, discarding partial text", "discarded", c.buf.Len())
	}
	c.buf.Reset()
	c.state = Streaming
	if c.speaker != nil {
		c.speaker.StartTurn()
	}
}

func (c *Collector) delta(text string) {
	if c.state != Streaming {
		slog.Debug("Collector.delta: text outside of a turn ignored", "length", len(text))
		return
	}
	c.buf.WriteString(text)
	if c.speaker != nil {
		c.speaker.Say(text)
	}
}

func (c *Collector) end() (models.Message, bool) {
	if c.state != Streaming {
		return models.Message{}, false
	}
	c.state = Idle
	if c.speaker != nil {
		c.speaker.FinishTurn()
	}
	text := c.buf.String()
	c.buf.Reset()
	if text == "" {
		return models.Message{}, false
	}
	msg, err := c.conv.Append(models.RoleAssistant, text)
	if err != nil {
		slog.Error("Collector.end: failed to commit assistant turn", "error", err)
		return models.Message{}, false
	}
	return msg, true
}

// Abort drops an unfinished turn without committing it.
func (c *Collector) Abort() {
	if c.state != Streaming {
		return
	}
	slog.Warn("Collector.Abort: dropping unfinished turn", "discarded", c.buf.Len())
	c.buf.Reset()
	c.state = Idle
	if c.speaker != nil {
		c.speaker.FinishTurn()
	}
}
