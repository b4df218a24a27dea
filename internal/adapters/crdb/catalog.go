package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/domain"
)

// ListMatches returns all matches ordered by scheduled time, each with
// home and away team names resolved.
func (r *Repository) ListMatches(ctx context.Context) ([]domain.Match, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.match_id, ht.team_name, at.team_name, m.match_date, m.stadium, m.total_seats
		FROM matches m
		JOIN teams ht ON m.home_team_id = ht.team_id
		JOIN teams at ON m.away_team_id = at.team_id
		ORDER BY m.match_date ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.ID, &m.HomeTeam, &m.AwayTeam, &m.MatchDate, &m.Stadium, &m.TotalSeats); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListSeats returns the seats of one match ordered by block, row and
// seat number. Listing reads are eventually consistent with concurrent
// claims; no locks are taken.
func (r *Repository) ListSeats(ctx context.Context, matchID uuid.UUID) ([]domain.Seat, error) {
	if err := r.matchExists(ctx, matchID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT seat_id, match_id, block, row_no, seat_number, grade, price, is_reserved
		FROM seats WHERE match_id = $1
		ORDER BY block, row_no, seat_number
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.MatchID, &s.Block, &s.RowNo, &s.SeatNumber, &s.Grade, &s.Price, &s.Reserved); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func (r *Repository) matchExists(ctx context.Context, matchID uuid.UUID) error {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT match_id FROM matches WHERE match_id = $1`, matchID).Scan(&id)
	if err == pgx.ErrNoRows {
		return errors.Wrapf(domain.ErrNotFound, "match %s", matchID)
	}
	return err
}
