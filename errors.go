package arenamap

import (
	"errors"
	"fmt"
)

var (
	// ErrNullArgument is returned when a required key or value is nil.
	ErrNullArgument = errors.New("null argument")

	// ErrAllocationFailed is returned when the slot array or the arena could
	// not be allocated. The table is left untouched.
	ErrAllocationFailed = errors.New("allocation failed")

	// ErrNotFound is returned by Get and Remove for absent keys.
	ErrNotFound = errors.New("not found")

	// ErrEmpty is returned when a scan or an endpoint lookup is attempted on
	// a table without live entries.
	ErrEmpty = errors.New("empty collection")

	ErrInvalidSize     = errors.New("invalid key/value size")
	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrDestroyed       = errors.New("table is destroyed")

	// ErrIteratorInvalidated is reported by Iterator.Err when the table was
	// mutated while the cursor was open.
	ErrIteratorInvalidated = errors.New("iterator invalidated by table mutation")
)

// SizeMismatchError indicates that a key or value blob does not have the
// width the table was created with.
//
// errors.Is(err, ErrInvalidSize) reports true for it.
type SizeMismatchError struct {
	Field    string
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s size mismatch: expected %d bytes, got %d", e.Field, e.Expected, e.Actual)
}

func (e *SizeMismatchError) Unwrap() error { return ErrInvalidSize }
