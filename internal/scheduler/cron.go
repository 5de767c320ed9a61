package scheduler

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/robfig/cron/v3"
)

// Cron runs recurring maintenance jobs such as log retention.
type Cron struct {
	cron *cron.Cron
}

// NewCron creates and starts a cron runner. Descriptors like "@hourly" are accepted.
func NewCron() *Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Cron{cron: c}
}

// AddJob schedules task using the provided cron expression.
func (c *Cron) AddJob(expr string, task func()) error {
	_, err := c.cron.AddFunc(expr, task)
	return err
}

// Stop stops the runner and waits for running jobs to finish.
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
}

// PruneFiles keeps the newest keep files in dir matching pattern and removes the rest.
// It returns the number of removed files.
func PruneFiles(dir, pattern string, keep int) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, err
	}
	type file struct {
		path string
		mod  int64
	}
	var files []file
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		files = append(files, file{path: m, mod: fi.ModTime().UnixNano()})
	}
	if len(files) <= keep {
		return 0, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod > files[j].mod })

	removed := 0
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			slog.Warn("PruneFiles: failed to remove file", "path", f.path, "error", err)
			continue
		}
		removed++
	}
	slog.Debug("PruneFiles: retention applied", "dir", dir, "kept", keep, "removed", removed)
	return removed, nil
}
