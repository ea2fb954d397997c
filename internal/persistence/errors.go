package persistence

import "errors"

// Sentinel errors surfaced by store implementations. Callers branch with
// errors.Is; implementations wrap these with driver detail.
var (
	// ErrDuplicate marks a unique-key collision on an insert that did not
	// expect one. Idempotent writes swallow the collision instead.
	ErrDuplicate = errors.New("duplicate row")

	// ErrNotFound marks a read that required a row to exist.
	ErrNotFound = errors.New("row not found")
)

// IsDuplicate reports whether err stems from a unique-key collision.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
