package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// ErrAccessDenied is returned for paths that leave the data directory.
var ErrAccessDenied = errors.New("access denied")

// FileTools reads and writes files confined to a data directory and appends to the memory file.
type FileTools struct {
	dataDir    string
	memoryFile string
	memoryMu   sync.Mutex
}

// NewFileTools creates file tools rooted at dataDir.
func NewFileTools(dataDir, memoryFile string) *FileTools {
	return &FileTools{dataDir: dataDir, memoryFile: memoryFile}
}

// Tools returns read_file, write_file, list_files and append_to_memory.
func (f *FileTools) Tools() []Tool {
	return []Tool{
		{
			Name:        "read_file",
			Description: "Read a file from the data directory.",
			Parameters:  objectSchema(map[string]interface{}{"filename": prop("string", "File name relative to the data directory.")}, "filename"),
			Handler:     f.readFile,
		},
		{
			Name:        "write_file",
			Description: "Write content to a file in the data directory, replacing it if it exists.",
			Parameters: objectSchema(map[string]interface{}{
				"filename": prop("string", "File name relative to the data directory."),
				"content":  prop("string", "Full file content."),
			}, "filename", "content"),
			Handler: f.writeFile,
		},
		{
			Name:        "list_files",
			Description: "List the files in the data directory.",
			Handler:     f.listFiles,
		},
		{
			Name:        "append_to_memory",
			Description: "Remember a fact about the user across sessions by appending a line to long-term memory.",
			Parameters:  objectSchema(map[string]interface{}{"content": prop("string", "The fact to remember.")}, "content"),
			Handler:     f.appendToMemory,
		},
	}
}

// resolve joins name onto the data directory and rejects anything that escapes it.
func (f *FileTools) resolve(name string) (string, error) {
	base, err := filepath.Abs(f.dataDir)
	if err != nil {
		return "", fmt.Errorf("resolving data directory: %w", err)
	}
	full, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", name, err)
	}
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrAccessDenied
	}
	return full, nil
}

func (f *FileTools) readFile(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args readArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid read arguments", err), nil
	}
	path, err := f.resolve(args.Filename)
	if err != nil {
		return models.ToolFailure("Access denied. Can only read files in the data directory.", err), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.ToolFailure(fmt.Sprintf("File '%s' not found.", args.Filename), err), nil
	}
	if err != nil {
		return models.ToolFailure("Error reading file", err), nil
	}
	return models.ToolSuccess(string(b), nil), nil
}

func (f *FileTools) writeFile(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args writeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid write arguments", err), nil
	}
	path, err := f.resolve(args.Filename)
	if err != nil {
		return models.ToolFailure("Access denied. Can only write files to the data directory.", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.ToolFailure("Error writing file", err), nil
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return models.ToolFailure("Error writing file", err), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Successfully wrote to '%s'.", args.Filename), nil), nil
}

func (f *FileTools) listFiles(context.Context, json.RawMessage) (models.ToolResult, error) {
	entries, err := os.ReadDir(f.dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return models.ToolSuccess("The data directory is empty.", []string{}), nil
	}
	if err != nil {
		return models.ToolFailure("Error listing files", err), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return models.ToolSuccess("The data directory is empty.", names), nil
	}
	return models.ToolSuccess(strings.Join(names, "\n"), names), nil
}

func (f *FileTools) appendToMemory(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args memoryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid memory arguments", err), nil
	}
	f.memoryMu.Lock()
	defer f.memoryMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.memoryFile), 0o755); err != nil {
		return models.ToolFailure("Error appending to memory", err), nil
	}
	file, err := os.OpenFile(f.memoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return models.ToolFailure("Error appending to memory", err), nil
	}
	if _, err := file.WriteString(args.Content + "\n"); err != nil {
		file.Close()
		return models.ToolFailure("Error appending to memory", err), nil
	}
	if err := file.Close(); err != nil {
		return models.ToolFailure("Error appending to memory", err), nil
	}
	return models.ToolSuccess("Successfully appended to memory.", nil), nil
}
