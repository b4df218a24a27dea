package crdb

import (
	"context"

	"github.com/robertarktes/stadium-tickets/internal/domain"
)

// MatchStatistics recomputes the per-match occupancy and sales view on
// every call. Active reservations count toward sales and reservation
// count; the reserved-seat figure comes from the seat flags themselves.
func (r *Repository) MatchStatistics(ctx context.Context) ([]domain.MatchStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			m.match_id, m.match_date, m.stadium, m.total_seats,
			count(DISTINCT s.seat_id) AS seat_count,
			count(DISTINCT CASE WHEN s.is_reserved THEN s.seat_id END) AS reserved_seats,
			COALESCE(sum(p.amount), 0) AS total_sales,
			count(DISTINCT res.res_id) AS reservation_count
		FROM matches m
		LEFT JOIN seats s ON s.match_id = m.match_id
		LEFT JOIN reservations res ON res.seat_id = s.seat_id AND res.status = $1
		LEFT JOIN payments p ON p.res_id = res.res_id
		GROUP BY m.match_id, m.match_date, m.stadium, m.total_seats
		ORDER BY m.match_date ASC
	`, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.MatchStats
	for rows.Next() {
		var st domain.MatchStats
		err := rows.Scan(&st.MatchID, &st.MatchDate, &st.Stadium, &st.TotalSeats,
			&st.SeatCount, &st.ReservedSeats, &st.TotalSales, &st.ReservationCount)
		if err != nil {
			return nil, err
		}
		if st.TotalSeats > 0 {
			st.OccupancyRate = float64(st.ReservedSeats) / float64(st.TotalSeats)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
