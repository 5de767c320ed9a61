package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// DefaultSandboxTimeout bounds one run_go_code call.
const DefaultSandboxTimeout = 5 * time.Second

// sandboxPackages are the only imports interpreted code may use.
var sandboxPackages = map[string]bool{
	"fmt":             true,
	"math":            true,
	"math/rand":       true,
	"strings":         true,
	"strconv":         true,
	"sort":            true,
	"time":            true,
	"encoding/json":   true,
	"encoding/base64": true,
	"regexp":          true,
	"unicode":         true,
	"bytes":           true,
}

var importPattern = regexp.MustCompile(`(?s)import\s*(\((.*?)\)|"[^"]*")`)
var quoted = regexp.MustCompile(`"([^"]+)"`)

// Sandbox interprets Go snippets with a restricted standard library.
type Sandbox struct {
	timeout time.Duration
	symbols interp.Exports
}

// NewSandbox creates a sandbox with the given per-run timeout.
func NewSandbox(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}
	symbols := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// keys look like "encoding/json/json"
		i := strings.LastIndex(key, "/")
		if i < 0 || !sandboxPackages[key[:i]] {
			continue
		}
		symbols[key] = syms
	}
	return &Sandbox{timeout: timeout, symbols: symbols}
}

func (s *Sandbox) Tools() []Tool {
	return []Tool{{
		Name: "run_go_code",
		Description: "Run a Go snippet and return what it prints. Either statements (e.g. `import \"fmt\"; fmt.Println(2+2)`) " +
			"or a complete `package main` program. Only these packages are available: " + strings.Join(s.allowed(), ", ") + ".",
		Parameters: objectSchema(map[string]interface{}{"code": prop("string", "Go source to run.")}, "code"),
		Handler:    s.runCode,
	}}
}

func (s *Sandbox) runCode(ctx context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args codeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid code arguments", err), nil
	}
	out, err := s.Run(ctx, args.Code)
	if err != nil {
		return models.ToolFailure("Error: "+err.Error(), err), nil
	}
	return models.ToolSuccess(out, nil), nil
}

// Run evaluates code and returns its combined stdout and stderr.
func (s *Sandbox) Run(ctx context.Context, code string) (string, error) {
	if err := s.checkImports(code); err != nil {
		return "", err
	}
	var out lockedBuffer
	i := interp.New(interp.Options{Stdout: &out, Stderr: &out})
	if err := i.Use(s.symbols); err != nil {
		return "", fmt.Errorf("loading symbols: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := i.EvalWithContext(ctx, program(code)); err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	v, err := i.EvalWithContext(ctx, "main.run")
	if err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	run, ok := v.Interface().(func())
	if !ok {
		return "", fmt.Errorf("entry point has unexpected type %s", v.Type())
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		run()
		done <- nil
	}()
	select {
	case err := <-done:
		return out.String(), err
	case <-ctx.Done():
		return "", fmt.Errorf("execution timed out after %s", s.timeout)
	}
}

var (
	packageClause = regexp.MustCompile(`(?m)^\s*package\s+\w+`)
	mainFunc      = regexp.MustCompile(`func\s+main\s*\(\s*\)`)
)

// program turns a snippet or a main package into a main package whose entry point is run.
func program(code string) string {
	if packageClause.MatchString(code) {
		code = packageClause.ReplaceAllString(code, "package main")
		return mainFunc.ReplaceAllString(code, "func run()")
	}
	imports := importPattern.FindAllString(code, -1)
	body := importPattern.ReplaceAllString(code, "")
	return "package main\n\n" + strings.Join(imports, "\n") + "\n\nfunc run() {\n" + body + "\n}\n"
}

func (s *Sandbox) checkImports(code string) error {
	var forbidden []string
	for _, m := range importPattern.FindAllStringSubmatch(code, -1) {
		for _, q := range quoted.FindAllStringSubmatch(m[1], -1) {
			if !sandboxPackages[q[1]] {
				forbidden = append(forbidden, q[1])
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("import of %s is not allowed", strings.Join(forbidden, ", "))
	}
	return nil
}

func (s *Sandbox) allowed() []string {
	pkgs := make([]string, 0, len(sandboxPackages))
	for p := range sandboxPackages {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// lockedBuffer is written by the interpreter and read after it returns, possibly while
// a timed-out goroutine is still printing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
