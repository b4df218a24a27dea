package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/domain"
)

// ClaimSeat is the check-and-set core of a reservation. It must run
// inside a WithTx unit: the seat row is locked FOR UPDATE so two
// concurrent claims on the same seat serialize, and the quota count
// reads the same snapshot the inserts write into.
//
// Precondition order: match exists, seat exists, seat belongs to match,
// seat free, user under quota. Each violation maps to its own typed
// error so the request log records the exact reason.
func (r *Repository) ClaimSeat(ctx context.Context, tx pgx.Tx, userID, matchID, seatID uuid.UUID, amount int64, method string) (domain.Reservation, domain.Payment, error) {
	var res domain.Reservation
	var pay domain.Payment

	if err := userExistsTx(ctx, tx, userID); err != nil {
		return res, pay, err
	}

	var exists uuid.UUID
	err := tx.QueryRow(ctx, `SELECT match_id FROM matches WHERE match_id = $1`, matchID).Scan(&exists)
	if err == pgx.ErrNoRows {
		return res, pay, errors.Wrapf(domain.ErrNotFound, "match %s", matchID)
	}
	if err != nil {
		return res, pay, err
	}

	var seatMatch uuid.UUID
	var reserved bool
	err = tx.QueryRow(ctx, `
		SELECT match_id, is_reserved FROM seats WHERE seat_id = $1 FOR UPDATE
	`, seatID).Scan(&seatMatch, &reserved)
	if err == pgx.ErrNoRows {
		return res, pay, errors.Wrapf(domain.ErrNotFound, "seat %s", seatID)
	}
	if err != nil {
		return res, pay, err
	}
	if seatMatch != matchID {
		return res, pay, domain.ErrMatchMismatch
	}
	if reserved {
		return res, pay, domain.ErrSeatConflict
	}

	var active int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM reservations
		WHERE user_id = $1 AND match_id = $2 AND status = $3
	`, userID, matchID, domain.StatusActive).Scan(&active)
	if err != nil {
		return res, pay, err
	}
	if active >= domain.MaxActiveSeatsPerMatch {
		return res, pay, domain.ErrQuotaExceeded
	}

	if _, err := tx.Exec(ctx, `UPDATE seats SET is_reserved = true WHERE seat_id = $1`, seatID); err != nil {
		return res, pay, err
	}

	res = domain.NewReservation(userID, matchID, seatID)
	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (res_id, user_id, match_id, seat_id, res_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, res.ID, res.UserID, res.MatchID, res.SeatID, res.ResDate, res.Status)
	if err != nil {
		return res, pay, err
	}

	pay = domain.NewPayment(res.ID, amount, method)
	_, err = tx.Exec(ctx, `
		INSERT INTO payments (pay_id, res_id, amount, method, pay_date)
		VALUES ($1, $2, $3, $4, $5)
	`, pay.ID, pay.ReservationID, pay.Amount, pay.Method, pay.PayDate)
	if err != nil {
		return res, pay, err
	}

	return res, pay, nil
}

func userExistsTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT user_id FROM users WHERE user_id = $1`, userID).Scan(&id)
	if err == pgx.ErrNoRows {
		return errors.Wrapf(domain.ErrNotFound, "user %s", userID)
	}
	return err
}
