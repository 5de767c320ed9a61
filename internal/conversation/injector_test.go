package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

func TestInjectorDrainsInOrder(t *testing.T) {
	conv := NewContext("sys")
	inj := NewInjector()
	inj.Enqueue("first")
	inj.Enqueue("second")

	ready := inj.DrainInto(conv)
	if len(ready) != 2 {
		t.Fatalf("got %d inference requests, want 2", len(ready))
	}
	msgs := conv.Messages()
	if msgs[1].Content != "first" || msgs[2].Content != "second" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if len(ready[0].Messages) != 2 || len(ready[1].Messages) != 3 {
		t.Errorf("each request should carry the context as of its prompt")
	}
	if inj.Len() != 0 {
		t.Errorf("queue not empty after drain")
	}
	if got := inj.DrainInto(conv); got != nil {
		t.Errorf("second drain returned %d items", len(got))
	}
}

func TestInjectorConcurrentEnqueue(t *testing.T) {
	conv := NewContext("sys")
	inj := NewInjector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inj.Enqueue(fmt.Sprintf("prompt %d", i))
		}(i)
	}
	wg.Wait()
	if got := len(inj.DrainInto(conv)); got != 50 {
		t.Fatalf("drained %d, want 50", got)
	}
	for _, m := range conv.Messages()[1:] {
		if m.Role != models.RoleUser {
			t.Fatalf("injected message has role %s", m.Role)
		}
	}
}

func TestInjectorDrainTakesSnapshot(t *testing.T) {
	inj := NewInjector()
	conv := NewContext("sys", WithAppendHook(func(m models.Message) {
		if m.Content == "first" {
			inj.Enqueue("late")
		}
	}))
	inj.Enqueue("first")
	inj.Enqueue("second")

	ready := inj.DrainInto(conv)
	if len(ready) != 2 {
		t.Fatalf("first drain returned %d items, want 2", len(ready))
	}
	if last := ready[1].Messages[len(ready[1].Messages)-1]; last.Content != "second" {
		t.Errorf("first drain ended with %q", last.Content)
	}
	if inj.Len() != 1 {
		t.Fatalf("queue length = %d, want the prompt enqueued mid-drain", inj.Len())
	}

	ready = inj.DrainInto(conv)
	if len(ready) != 1 {
		t.Fatalf("second drain returned %d items, want 1", len(ready))
	}
	if last := ready[0].Messages[len(ready[0].Messages)-1]; last.Content != "late" {
		t.Errorf("second drain delivered %q", last.Content)
	}
}
