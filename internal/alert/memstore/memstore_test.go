package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/linnemanlabs/herald/internal/alert"
)

func strPtr(s string) *string { return &s }

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	created, err := s.Create(ctx, tx, alert.NewAlert{
		Text:        "High Error Rate",
		Fingerprint: strPtr("fp-1"),
		SlothSLO:    strPtr("success-rate-99"),
		Severity:    strPtr("page"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Error("Create assigned no id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create assigned no timestamps")
	}

	got, err := s.Get(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "High Error Rate" {
		t.Errorf("Text = %q, want %q", got.Text, "High Error Rate")
	}
	if got.SlothSLO == nil || *got.SlothSLO != "success-rate-99" {
		t.Errorf("SlothSLO = %v, want success-rate-99", got.SlothSLO)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := s.Get(ctx, tx, 999); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}
}

func TestDuplicateFingerprint(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := s.Create(ctx, tx, alert.NewAlert{Text: "a", Fingerprint: strPtr("dup")}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := s.Create(ctx, tx, alert.NewAlert{Text: "b", Fingerprint: strPtr("dup")}); !errors.Is(err, alert.ErrDuplicateRow) {
		t.Errorf("second Create error = %v, want ErrDuplicateRow", err)
	}
}

func TestGetByFingerprint(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	created, err := s.Create(ctx, tx, alert.NewAlert{Text: "a", Fingerprint: strPtr("fp-find")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := s.GetByFingerprint(ctx, tx, "fp-find")
	if err != nil {
		t.Fatalf("GetByFingerprint: %v", err)
	}
	if !ok {
		t.Fatal("GetByFingerprint returned ok=false for existing fingerprint")
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}

	if _, ok, err := s.GetByFingerprint(ctx, tx, "nope"); err != nil || ok {
		t.Errorf("GetByFingerprint(nope) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	created, err := s.Create(ctx, tx, alert.NewAlert{Text: "a", Fingerprint: strPtr("fp-upd")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	created.Resolved = true
	created.SlackChannel = strPtr("C123")
	created.SlackTS = strPtr("1700000000.000100")
	if err := s.Update(ctx, tx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Resolved {
		t.Error("Resolved not persisted")
	}
	if got.SlackTS == nil || *got.SlackTS != "1700000000.000100" {
		t.Errorf("SlackTS = %v, want 1700000000.000100", got.SlackTS)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("UpdatedAt went backwards")
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestUpdateMissing(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.Update(ctx, tx, &alert.Alert{ID: 42}); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("Update(42) error = %v, want ErrNotFound", err)
	}
}

func TestRollbackUndoesWrites(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	// Seed a committed row first.
	tx, _ := s.Begin(ctx)
	seeded, err := s.Create(ctx, tx, alert.NewAlert{Text: "seed", Fingerprint: strPtr("fp-seed")})
	if err != nil {
		t.Fatalf("Create seed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit seed: %v", err)
	}

	// Create one row and mutate the seeded one, then abort.
	tx, _ = s.Begin(ctx)
	if _, err := s.Create(ctx, tx, alert.NewAlert{Text: "doomed", Fingerprint: strPtr("fp-doomed")}); err != nil {
		t.Fatalf("Create doomed: %v", err)
	}
	seeded.Resolved = true
	if err := s.Update(ctx, tx, seeded); err != nil {
		t.Fatalf("Update seeded: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	tx, _ = s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, ok, _ := s.GetByFingerprint(ctx, tx, "fp-doomed"); ok {
		t.Error("rolled back Create left a row behind")
	}
	got, err := s.Get(ctx, tx, seeded.ID)
	if err != nil {
		t.Fatalf("Get seeded: %v", err)
	}
	if got.Resolved {
		t.Error("rolled back Update left the row mutated")
	}
}

func TestRollbackAfterCommitIsHarmless(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	created, err := s.Create(ctx, tx, alert.NewAlert{Text: "keep", Fingerprint: strPtr("fp-keep")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback after commit: %v", err)
	}

	tx, _ = s.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck
	if _, err := s.Get(ctx, tx, created.ID); err != nil {
		t.Errorf("committed row lost after late rollback: %v", err)
	}
}

func TestTransactionsSerialize(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)

	second := make(chan alert.Tx)
	go func() {
		tx2, _ := s.Begin(ctx)
		second <- tx2
	}()

	select {
	case <-second:
		t.Fatal("second Begin did not wait for the first transaction")
	default:
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2 := <-second
	if err := tx2.Rollback(ctx); err != nil {
		t.Fatalf("Rollback second: %v", err)
	}
}
