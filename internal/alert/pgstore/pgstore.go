// Package pgstore provides a PostgreSQL implementation of alert.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/herald/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/herald/internal/alert/pgstore")

//go:embed schema.sql
var schema string

const pgUniqueViolation = "23505"

// Store persists alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store backed by the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// txn wraps a pgx transaction behind the alert.Tx interface.
type txn struct {
	tx pgx.Tx
}

func (t *txn) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *txn) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// Begin opens a new transaction.
func (s *Store) Begin(ctx context.Context) (alert.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txn{tx: tx}, nil
}

func unwrapTx(tx alert.Tx) (pgx.Tx, error) {
	t, ok := tx.(*txn)
	if !ok {
		return nil, fmt.Errorf("pgstore: foreign transaction type %T", tx)
	}
	return t.tx, nil
}

const alertColumns = `id, text, resolved, fingerprint, chart_filename,
	slack_channel, slack_ts, sloth_slo, sloth_service, objective_name, severity,
	created_at, updated_at`

// Create inserts a new alert row with server-assigned timestamps.
func (s *Store) Create(ctx context.Context, tx alert.Tx, n alert.NewAlert) (*alert.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Create", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	ptx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `INSERT INTO alerts (
		text, resolved, fingerprint, chart_filename, slack_channel, slack_ts,
		sloth_slo, sloth_service, objective_name, severity, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	RETURNING ` + alertColumns

	a, err := scanAlert(ptx.QueryRow(ctx, query,
		n.Text, n.Resolved, n.Fingerprint, n.ChartFilename, n.SlackChannel,
		n.SlackTS, n.SlothSLO, n.SlothService, n.ObjectiveName, n.Severity,
		now, now,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			err = fmt.Errorf("%w: fingerprint", alert.ErrDuplicateRow)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return a, nil
}

// Get retrieves an alert by id.
func (s *Store) Get(ctx context.Context, tx alert.Tx, id int64) (*alert.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	ptx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(ptx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, alert.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return a, nil
}

// GetByFingerprint retrieves the alert row for a fingerprint, if any.
func (s *Store) GetByFingerprint(ctx context.Context, tx alert.Tx, fingerprint string) (*alert.Alert, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByFingerprint", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	ptx, err := unwrapTx(tx)
	if err != nil {
		return nil, false, err
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE fingerprint = $1`
	a, err := scanAlert(ptx.QueryRow(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	return a, true, nil
}

// Update writes the mutable fields of the row with a.ID and stamps updated_at.
func (s *Store) Update(ctx context.Context, tx alert.Tx, a *alert.Alert) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	ptx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	query := `UPDATE alerts
		SET resolved = $1, chart_filename = $2, slack_channel = $3, slack_ts = $4, updated_at = $5
		WHERE id = $6`

	tag, err := ptx.Exec(ctx, query,
		a.Resolved, a.ChartFilename, a.SlackChannel, a.SlackTS, time.Now().UTC(), a.ID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update alert %d: %w", a.ID, err)
	}

	switch tag.RowsAffected() {
	case 0:
		return alert.ErrNotFound
	case 1:
		return nil
	default:
		err := fmt.Errorf("%w: update of id %d affected %d rows", alert.ErrInconsistentState, a.ID, tag.RowsAffected())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var a alert.Alert
	err := row.Scan(
		&a.ID, &a.Text, &a.Resolved, &a.Fingerprint, &a.ChartFilename,
		&a.SlackChannel, &a.SlackTS, &a.SlothSLO, &a.SlothService,
		&a.ObjectiveName, &a.Severity, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
