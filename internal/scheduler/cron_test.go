package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCronAddJob(t *testing.T) {
	c := NewCron()
	defer c.Stop()
	if err := c.AddJob("@hourly", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := c.AddJob("not a cron line", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestPruneFilesKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		p := filepath.Join(dir, "log"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		os.Chtimes(p, mod, mod)
	}
	os.WriteFile(filepath.Join(dir, "keep.json"), []byte("{}"), 0644)

	removed, err := PruneFiles(dir, "*.txt", 5)
	if err != nil {
		t.Fatalf("PruneFiles: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	for _, gone := range []string{"loga.txt", "logb.txt"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", gone)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.json")); err != nil {
		t.Errorf("non-matching file removed")
	}
}
