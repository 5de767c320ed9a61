// Package commandfile implements the file-mediated channel used to hand website block
// commands to the browser extension. Each write atomically replaces the whole file;
// readers detect new commands by the timestamp field.
package commandfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Verb is the command name understood by the extension.
type Verb string

const (
	Block   Verb = "block"
	Unblock Verb = "unblock"
)

// Command is the JSON document written to the command file.
type Command struct {
	Command          Verb     `json:"command"`
	Domains          []string `json:"domains"`
	UnblockTimestamp *int64   `json:"unblock_timestamp,omitempty"`
	BlockID          uint64   `json:"block_id"`
	Timestamp        float64  `json:"timestamp"`
}

// NewBlock builds a block command that the extension lifts by itself at until.
func NewBlock(blockID uint64, domains []string, until time.Time) Command {
	ts := until.Unix()
	return Command{Command: Block, Domains: domains, UnblockTimestamp: &ts, BlockID: blockID}
}

// NewUnblock builds the unblock command matching a previous block.
func NewUnblock(blockID uint64, domains []string) Command {
	return Command{Command: Unblock, Domains: domains, BlockID: blockID}
}

// Validate checks the fields every consumer depends on.
func (c Command) Validate() error {
	if c.Command != Block && c.Command != Unblock {
		return fmt.Errorf("unknown command %q", c.Command)
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("command %s for block %d has no domains", c.Command, c.BlockID)
	}
	return nil
}

// Writer atomically replaces the command file with each new command.
type Writer struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewWriter creates a Writer for path. The parent directory is created on first write.
func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// Path returns the command file location.
func (w *Writer) Path() string { return w.path }

// Write stamps cmd with the current time and replaces the file contents.
func (w *Writer) Write(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cmd.Timestamp = float64(w.now().UnixMicro()) / 1e6
	data, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create command directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary command file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write command file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close command file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		slog.Warn("Writer.Write: failed to set command file permissions", "error", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace command file %s: %w", w.path, err)
	}
	slog.Info("Writer.Write: command written", "command", cmd.Command, "block_id", cmd.BlockID, "domains", cmd.Domains, "path", w.path)
	return nil
}

// Read decodes the command currently stored at path.
func Read(path string) (Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Command{}, err
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to decode command file %s: %w", path, err)
	}
	return cmd, nil
}
