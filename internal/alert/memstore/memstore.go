// Package memstore provides an in-memory implementation of alert.Store.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/herald/internal/alert"
)

// Store holds alert rows in memory. Suitable for dev/testing.
//
// Transactions take an exclusive lock from Begin until Commit or Rollback, so
// they serialize but keep the same read-your-writes and abort semantics as the
// Postgres store.
type Store struct {
	mu     sync.Mutex
	rows   map[int64]*alert.Alert
	byFp   map[string]int64
	nextID int64
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		rows:   make(map[int64]*alert.Alert),
		byFp:   make(map[string]int64),
		nextID: 1,
	}
}

type undo func()

type memTx struct {
	s     *Store
	undos []undo
	done  bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		// rollback after commit is harmless, mirroring pgx
		return nil
	}
	t.done = true
	for i := len(t.undos) - 1; i >= 0; i-- {
		t.undos[i]()
	}
	t.s.mu.Unlock()
	return nil
}

// Begin opens a transaction, locking the store until it finishes.
func (s *Store) Begin(_ context.Context) (alert.Tx, error) {
	s.mu.Lock()
	return &memTx{s: s}, nil
}

func (s *Store) unwrapTx(tx alert.Tx) (*memTx, error) {
	t, ok := tx.(*memTx)
	if !ok || t.s != s {
		return nil, fmt.Errorf("memstore: foreign transaction type %T", tx)
	}
	if t.done {
		return nil, fmt.Errorf("memstore: transaction already finished")
	}
	return t, nil
}

// Create inserts a new row and returns a copy with assigned id and timestamps.
func (s *Store) Create(_ context.Context, tx alert.Tx, n alert.NewAlert) (*alert.Alert, error) {
	t, err := s.unwrapTx(tx)
	if err != nil {
		return nil, err
	}

	if n.Fingerprint != nil {
		if _, exists := s.byFp[*n.Fingerprint]; exists {
			return nil, fmt.Errorf("%w: fingerprint", alert.ErrDuplicateRow)
		}
	}

	now := time.Now().UTC()
	a := &alert.Alert{
		ID:            s.nextID,
		Text:          n.Text,
		Resolved:      n.Resolved,
		Fingerprint:   n.Fingerprint,
		ChartFilename: n.ChartFilename,
		SlackChannel:  n.SlackChannel,
		SlackTS:       n.SlackTS,
		SlothSLO:      n.SlothSLO,
		SlothService:  n.SlothService,
		ObjectiveName: n.ObjectiveName,
		Severity:      n.Severity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.nextID++
	s.rows[a.ID] = a
	if a.Fingerprint != nil {
		s.byFp[*a.Fingerprint] = a.ID
	}

	id := a.ID
	fp := a.Fingerprint
	t.undos = append(t.undos, func() {
		delete(s.rows, id)
		if fp != nil {
			delete(s.byFp, *fp)
		}
	})

	cp := *a
	return &cp, nil
}

// Get retrieves a copy of the row with the given id.
func (s *Store) Get(_ context.Context, tx alert.Tx, id int64) (*alert.Alert, error) {
	if _, err := s.unwrapTx(tx); err != nil {
		return nil, err
	}
	a, ok := s.rows[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetByFingerprint retrieves a copy of the row for a fingerprint, if any.
func (s *Store) GetByFingerprint(_ context.Context, tx alert.Tx, fingerprint string) (*alert.Alert, bool, error) {
	if _, err := s.unwrapTx(tx); err != nil {
		return nil, false, err
	}
	id, ok := s.byFp[fingerprint]
	if !ok {
		return nil, false, nil
	}
	cp := *s.rows[id]
	return &cp, true, nil
}

// Update writes the mutable fields of the row with a.ID.
func (s *Store) Update(_ context.Context, tx alert.Tx, a *alert.Alert) error {
	t, err := s.unwrapTx(tx)
	if err != nil {
		return err
	}

	cur, ok := s.rows[a.ID]
	if !ok {
		return alert.ErrNotFound
	}

	prev := *cur
	t.undos = append(t.undos, func() {
		restored := prev
		s.rows[prev.ID] = &restored
	})

	cur.Resolved = a.Resolved
	cur.ChartFilename = a.ChartFilename
	cur.SlackChannel = a.SlackChannel
	cur.SlackTS = a.SlackTS
	cur.UpdatedAt = time.Now().UTC()
	return nil
}
