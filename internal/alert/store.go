package alert

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no row matches the given id.
	ErrNotFound = errors.New("alert not found")

	// ErrDuplicateRow is returned when an insert violates a uniqueness
	// constraint (a second row for an existing fingerprint).
	ErrDuplicateRow = errors.New("duplicate alert row")

	// ErrInconsistentState is returned when an update touches more than one
	// row. Row ids are unique, so this signals a broken invariant and is
	// never retried.
	ErrInconsistentState = errors.New("inconsistent alert store state")
)

// Tx is a store transaction. Every multi-step sequence (dedup-check-then-write,
// read-then-mutate) runs inside one Tx acquired by the caller and passed to
// each store call, so the read and the write see the same snapshot.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the persistence interface for alerts. Implementations must reject
// a Tx they did not create.
type Store interface {
	// Begin opens a new transaction.
	Begin(ctx context.Context) (Tx, error)

	// Create inserts a new row and returns it with the assigned id and
	// timestamps.
	Create(ctx context.Context, tx Tx, n NewAlert) (*Alert, error)

	// Get returns the row with the given id, or ErrNotFound.
	Get(ctx context.Context, tx Tx, id int64) (*Alert, error)

	// GetByFingerprint returns the row for a fingerprint. Absence is not an
	// error: ok is false when there is no dedup target.
	GetByFingerprint(ctx context.Context, tx Tx, fingerprint string) (a *Alert, ok bool, err error)

	// Update writes the mutable fields (resolved, chart filename, Slack
	// message reference) of the row with a.ID and stamps UpdatedAt.
	Update(ctx context.Context, tx Tx, a *Alert) error
}
