package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type sliceSubmitter []string

func (s *sliceSubmitter) Submit(_ context.Context, text string) error {
	*s = append(*s, text)
	return nil
}

func TestReadLinesSkipsBlankLines(t *testing.T) {
	var got sliceSubmitter
	in := strings.NewReader("jarvis hello\n\n   \n  jarvis set an alarm  \n")
	if err := ReadLines(context.Background(), in, &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"jarvis hello", "jarvis set an alarm"}, []string(got)); diff != "" {
		t.Errorf("submitted (-want +got):\n%s", diff)
	}
}

func TestConsoleSpeaker(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSpeaker(&buf)
	s.StartTurn()
	s.Say("4.")
	s.Say("0")
	s.FinishTurn()
	if buf.String() != "Jarvis: 4.0\n" {
		t.Errorf("output = %q", buf.String())
	}
}
