package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleSpeaker prints assistant turns as they stream.
type ConsoleSpeaker struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSpeaker writes to out.
func NewConsoleSpeaker(out io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{out: out}
}

func (s *ConsoleSpeaker) StartTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, "Jarvis: ")
}

func (s *ConsoleSpeaker) Say(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, delta)
}

func (s *ConsoleSpeaker) FinishTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out)
}

// Submitter accepts finalized utterances.
type Submitter interface {
	Submit(ctx context.Context, text string) error
}

// ReadLines submits every non-blank line of r as an utterance until EOF or ctx is done.
func ReadLines(ctx context.Context, r io.Reader, sub Submitter) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sub.Submit(ctx, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
