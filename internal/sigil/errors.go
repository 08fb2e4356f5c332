package sigil

import (
	"errors"
	"fmt"
)

// LifecycleErrorCode categorizes lifecycle errors.
type LifecycleErrorCode string

const (
	// ErrCodeInvalidTransition indicates the requested status is not reachable
	// from the current one.
	ErrCodeInvalidTransition LifecycleErrorCode = "INVALID_TRANSITION"
)

// LifecycleError reports a rejected status change. It is surfaced to callers
// as-is so the UI can explain why an action was refused.
type LifecycleError struct {
	Code    LifecycleErrorCode
	SigilID string
	From    Status
	To      Status
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	if e.SigilID != "" {
		return fmt.Sprintf("%s: %s -> %s (sigil=%s)", e.Code, e.From, e.To, e.SigilID)
	}
	return fmt.Sprintf("%s: %s -> %s", e.Code, e.From, e.To)
}

// NewInvalidTransitionError creates a LifecycleError for an illegal edge.
func NewInvalidTransitionError(sigilID string, from, to Status) *LifecycleError {
	return &LifecycleError{
		Code:    ErrCodeInvalidTransition,
		SigilID: sigilID,
		From:    from,
		To:      to,
	}
}

// IsInvalidTransition returns true if err is, or wraps, an invalid transition.
func IsInvalidTransition(err error) bool {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le.Code == ErrCodeInvalidTransition
	}
	return false
}
