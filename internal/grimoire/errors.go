package grimoire

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation addresses a sigil that is not
	// in the store. The store never creates a sigil to satisfy such a call.
	ErrNotFound = errors.New("not found")

	// ErrOwnerChanged is returned when an upsert would move a sigil to a
	// different entity's page.
	ErrOwnerChanged = errors.New("sigil owner cannot change")

	// ErrStale is returned by a guarded status update when the stored sigil
	// has moved on since the caller last read it.
	ErrStale = errors.New("sigil changed since it was read")
)

// IsNotFound returns true if err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStale returns true if err is, or wraps, ErrStale.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

func sigilNotFound(sigilID string) error {
	return fmt.Errorf("sigil %s: %w", sigilID, ErrNotFound)
}
