package harness

import (
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as scripted and every assertion held.
	Pass bool `json:"pass"`

	// Trace is one line per observable event, stamped with elapsed game time.
	Trace []string `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// AddTrace appends an event stamped with elapsed time.
func (r *Result) AddTrace(elapsed time.Duration, format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf("[%s] ", elapsed)+fmt.Sprintf(format, args...))
}

// TraceText joins the trace into newline-terminated text.
func (r *Result) TraceText() string {
	if len(r.Trace) == 0 {
		return ""
	}
	return strings.Join(r.Trace, "\n") + "\n"
}
