package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/stadium-tickets/internal/domain"
	"github.com/robertarktes/stadium-tickets/internal/observability"
)

const (
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

// Repository owns every query against the relational store. All
// cross-entity invariants (seat uniqueness, quota, cancel cap) are
// enforced inside WithTx units, never by in-process state, so the
// service stays correct when run as multiple replicas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a SERIALIZABLE transaction. Serialization and
// deadlock errors surface as domain.ErrSerializationFailure so the
// boundary can retry the whole unit once.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapRetryable(err)
	}

	return mapRetryable(tx.Commit(ctx))
}

func mapRetryable(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == serializationFailureCode || pgErr.Code == deadlockDetectedCode {
			return errors.Mark(err, domain.ErrSerializationFailure)
		}
	}
	return err
}
