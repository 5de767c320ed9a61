package scheduler

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

var (
	// ErrNotFound is returned by Cancel for unknown ids and for actions that already fired or were cancelled.
	ErrNotFound = errors.New("action not found or already completed")
	// ErrClosed is returned by Schedule after Stop.
	ErrClosed = errors.New("scheduler is stopped")
)

// ValidationError reports a missing or invalid argument. Nothing is scheduled.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseError reports an unparseable clock string. Nothing is scheduled.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse time %q, use HH:MM (24-hour) or HH:MM AM/PM", e.Input)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SideEffectError reports a failed external side effect. Only the block command written while
// scheduling a website block is surfaced to callers; trigger failures are logged instead.
type SideEffectError struct {
	Kind models.ActionKind
	Op   string
	Err  error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Op, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }
