package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/domain"
)

const insertRequestLogSQL = `
	INSERT INTO request_log (log_id, user_id, match_id, seat_id, action, success, fail_reason, ip, user_agent)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// InsertRequestLogTx appends a request-log row inside a claim
// transaction, so a successful attempt and its log row commit together.
func (r *Repository) InsertRequestLogTx(ctx context.Context, tx pgx.Tx, e domain.RequestLogEntry) error {
	_, err := tx.Exec(ctx, insertRequestLogSQL,
		e.ID, e.UserID, e.MatchID, e.SeatID, e.Action, e.Success, e.FailReason, e.IP, e.UserAgent)
	return err
}

// InsertRequestLog appends a request-log row outside any transaction.
// Failed claims roll their transaction back, so their log rows are
// written through here afterwards; the failure reason must be durable
// before the error reaches the caller.
func (r *Repository) InsertRequestLog(ctx context.Context, e domain.RequestLogEntry) error {
	_, err := r.pool.Exec(ctx, insertRequestLogSQL,
		e.ID, e.UserID, e.MatchID, e.SeatID, e.Action, e.Success, e.FailReason, e.IP, e.UserAgent)
	return err
}

// ListCancelHistory returns every cancellation ever recorded, newest
// first. The cancel log is append-only; there is no update or delete
// path anywhere in this repository.
func (r *Repository) ListCancelHistory(ctx context.Context) ([]domain.CancelLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cancel_id, res_id, user_id, cancel_date, reason
		FROM cancel_log
		ORDER BY cancel_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CancelLogEntry
	for rows.Next() {
		var e domain.CancelLogEntry
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.UserID, &e.CancelDate, &e.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindCancelAbuseCandidates groups the cancel log by user, keeps users
// with three or more lifetime cancellations and orders them by count
// descending. The representative reservation is the user's earliest
// cancel.
func (r *Repository) FindCancelAbuseCandidates(ctx context.Context) ([]domain.AbuseCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, res_id, cancel_count FROM (
			SELECT
				user_id,
				res_id,
				count(*) OVER (PARTITION BY user_id) AS cancel_count,
				row_number() OVER (PARTITION BY user_id ORDER BY cancel_date ASC) AS rn
			FROM cancel_log
		)
		WHERE rn = 1 AND cancel_count >= $1
		ORDER BY cancel_count DESC
	`, domain.CancelLimitPerMatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.AbuseCandidate
	for rows.Next() {
		var c domain.AbuseCandidate
		if err := rows.Scan(&c.UserID, &c.ReservationID, &c.CancelCount); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// CountAbuseFlags reports how many flags exist for a user and match.
// Flags are inserted fresh on every blocked cancel, never deduplicated.
func (r *Repository) CountAbuseFlags(ctx context.Context, userID, matchID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM abuse_log WHERE user_id = $1 AND match_id = $2
	`, userID, matchID).Scan(&n)
	return n, err
}
