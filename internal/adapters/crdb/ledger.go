package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/domain"
)

func (r *Repository) GetReservation(ctx context.Context, resID uuid.UUID) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT res_id, user_id, match_id, seat_id, res_date, status
		FROM reservations WHERE res_id = $1
	`, resID).Scan(&res.ID, &res.UserID, &res.MatchID, &res.SeatID, &res.ResDate, &res.Status)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", resID)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetReservationForUpdate locks the reservation row for the duration of
// the transaction. Every cancel goes through this lock, which is what
// makes a double-cancel race resolve to exactly one mutation.
func (r *Repository) GetReservationForUpdate(ctx context.Context, tx pgx.Tx, resID uuid.UUID) (*domain.Reservation, error) {
	var res domain.Reservation
	err := tx.QueryRow(ctx, `
		SELECT res_id, user_id, match_id, seat_id, res_date, status
		FROM reservations WHERE res_id = $1 FOR UPDATE
	`, resID).Scan(&res.ID, &res.UserID, &res.MatchID, &res.SeatID, &res.ResDate, &res.Status)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", resID)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CountUserMatchCancels counts prior successful cancellations by the
// user for the reservation's match. The join mirrors how the cancel log
// relates back to reservations; it must read inside the same
// serialized unit as the cancel-log insert to avoid an undercount when
// two cancels by one user race.
func (r *Repository) CountUserMatchCancels(ctx context.Context, tx pgx.Tx, userID, matchID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM cancel_log c
		JOIN reservations r ON c.res_id = r.res_id
		WHERE c.user_id = $1 AND r.match_id = $2
	`, userID, matchID).Scan(&n)
	return n, err
}

func (r *Repository) InsertAbuseFlag(ctx context.Context, tx pgx.Tx, flag domain.AbuseFlag) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO abuse_log (abuse_id, user_id, match_id, event_type, detected_time)
		VALUES ($1, $2, $3, $4, $5)
	`, flag.ID, flag.UserID, flag.MatchID, flag.EventType, flag.DetectedAt)
	return err
}

// MarkCancelled applies the cancel mutation: status flip, seat release
// and the cancel-log append, all on the locked reservation row's
// transaction.
func (r *Repository) MarkCancelled(ctx context.Context, tx pgx.Tx, res *domain.Reservation, reason *string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE reservations SET status = $2 WHERE res_id = $1 AND status = $3
	`, res.ID, domain.StatusCancelled, domain.StatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyCancelled
	}

	if _, err := tx.Exec(ctx, `UPDATE seats SET is_reserved = false WHERE seat_id = $1`, res.SeatID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cancel_log (cancel_id, res_id, user_id, cancel_date, reason)
		VALUES ($1, $2, $3, now(), $4)
	`, uuid.New(), res.ID, res.UserID, reason)
	if err != nil {
		return err
	}

	res.Status = domain.StatusCancelled
	return nil
}

// ListUserReservations returns the user's reservations newest first,
// each joined with match, seat and payment. Payment is left-joined and
// modeled optional out of defensiveness; a missing payment indicates a
// data inconsistency, not an expected state.
func (r *Repository) ListUserReservations(ctx context.Context, userID uuid.UUID) ([]domain.UserReservation, error) {
	if err := r.userExists(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT
			r.res_id, r.user_id, r.match_id, r.seat_id, r.res_date, r.status,
			m.match_date, m.stadium, m.total_seats,
			ht.team_name, at.team_name,
			s.seat_id, s.block, s.row_no, s.seat_number, s.grade, s.price, s.is_reserved,
			p.pay_id, p.amount, p.method, p.pay_date
		FROM reservations r
		JOIN matches m ON r.match_id = m.match_id
		JOIN teams ht ON m.home_team_id = ht.team_id
		JOIN teams at ON m.away_team_id = at.team_id
		JOIN seats s ON r.seat_id = s.seat_id
		LEFT JOIN payments p ON r.res_id = p.res_id
		WHERE r.user_id = $1
		ORDER BY r.res_date DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserReservation
	for rows.Next() {
		var ur domain.UserReservation
		var payID *uuid.UUID
		var pay domain.Payment
		var amount *int64
		var method *string
		var payDate *time.Time
		err := rows.Scan(
			&ur.Reservation.ID, &ur.Reservation.UserID, &ur.Reservation.MatchID,
			&ur.Reservation.SeatID, &ur.Reservation.ResDate, &ur.Reservation.Status,
			&ur.Match.MatchDate, &ur.Match.Stadium, &ur.Match.TotalSeats,
			&ur.Match.HomeTeam, &ur.Match.AwayTeam,
			&ur.Seat.ID, &ur.Seat.Block, &ur.Seat.RowNo, &ur.Seat.SeatNumber,
			&ur.Seat.Grade, &ur.Seat.Price, &ur.Seat.Reserved,
			&payID, &amount, &method, &payDate,
		)
		if err != nil {
			return nil, err
		}
		ur.Match.ID = ur.Reservation.MatchID
		ur.Seat.MatchID = ur.Reservation.MatchID
		if payID != nil {
			pay.ID = *payID
			pay.ReservationID = ur.Reservation.ID
			pay.Amount = *amount
			pay.Method = *method
			pay.PayDate = *payDate
			ur.Payment = &pay
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

func (r *Repository) userExists(ctx context.Context, userID uuid.UUID) error {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM users WHERE user_id = $1`, userID).Scan(&id)
	if err == pgx.ErrNoRows {
		return errors.Wrapf(domain.ErrNotFound, "user %s", userID)
	}
	return err
}
