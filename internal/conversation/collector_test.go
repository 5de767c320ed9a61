package conversation

import (
	"strings"
	"testing"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

type recordingSpeaker struct {
	starts, finishes int
	said             strings.Builder
}

func (s *recordingSpeaker) StartTurn()       { s.starts++ }
func (s *recordingSpeaker) Say(delta string) { s.said.WriteString(delta) }
func (s *recordingSpeaker) FinishTurn()      { s.finishes++ }

func feed(c *Collector, events ...models.Event) (committed []models.Message) {
	for _, ev := range events {
		if msg, ok := c.Handle(ev); ok {
			committed = append(committed, msg)
		}
	}
	return committed
}

func TestCollectorCommitsOneMessagePerTurn(t *testing.T) {
	conv := NewContext("sys")
	sp := &recordingSpeaker{}
	c := NewCollector(conv, sp)

	got := feed(c, models.TurnStart{}, models.TextDelta{Text: "4."}, models.TextDelta{Text: "0"}, models.TurnEnd{})
	if len(got) != 1 || got[0].Content != "4.0" || got[0].Role != models.RoleAssistant {
		t.Fatalf("committed %+v, want one assistant message 4.0", got)
	}
	if conv.Len() != 2 {
		t.Errorf("context len = %d, want 2", conv.Len())
	}
	if sp.said.String() != "4.0" || sp.starts != 1 || sp.finishes != 1 {
		t.Errorf("speaker saw %q starts=%d finishes=%d", sp.said.String(), sp.starts, sp.finishes)
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestCollectorEmptyTurnCommitsNothing(t *testing.T) {
	conv := NewContext("sys")
	c := NewCollector(conv, nil)
	if got := feed(c, models.TurnStart{}, models.TurnEnd{}); len(got) != 0 {
		t.Fatalf("committed %+v, want nothing", got)
	}
	if conv.Len() != 1 {
		t.Errorf("context len = %d, want 1", conv.Len())
	}
}

func TestCollectorIgnoresTextOutsideTurn(t *testing.T) {
	conv := NewContext("sys")
	c := NewCollector(conv, nil)
	got := feed(c, models.TextDelta{Text: "stray"}, models.TurnEnd{}, models.TurnStart{}, models.TextDelta{Text: "ok"}, models.TurnEnd{})
	if len(got) != 1 || got[0].Content != "ok" {
		t.Fatalf("committed %+v, want only ok", got)
	}
}

func TestCollectorRestartDiscardsPartialTurn(t *testing.T) {
	c := NewCollector(NewContext("sys"), nil)
	got := feed(c, models.TurnStart{}, models.TextDelta{Text: "half"}, models.TurnStart{}, models.TextDelta{Text: "whole"}, models.TurnEnd{})
	if len(got) != 1 || got[0].Content != "whole" {
		t.Fatalf("committed %+v, want whole", got)
	}
}

func TestCollectorAbortDropsTurn(t *testing.T) {
	conv := NewContext("sys")
	sp := &recordingSpeaker{}
	c := NewCollector(conv, sp)

	feed(c, models.TurnStart{}, models.TextDelta{Text: "half a sent"})
	c.Abort()
	if c.State() != Idle {
		t.Fatalf("state = %v after abort", c.State())
	}
	if got := feed(c, models.TurnEnd{}); len(got) != 0 {
		t.Errorf("turn end after abort committed %+v", got)
	}
	if conv.Len() != 1 || sp.finishes != 1 {
		t.Errorf("len=%d finishes=%d, want 1 and 1", conv.Len(), sp.finishes)
	}
}
