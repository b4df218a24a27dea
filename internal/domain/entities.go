package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
	Role  string
}

type Team struct {
	ID     uuid.UUID
	Name   string
	League string
	City   string
}

type Match struct {
	ID         uuid.UUID
	HomeTeam   string
	AwayTeam   string
	MatchDate  time.Time
	Stadium    string
	TotalSeats int
}

type Seat struct {
	ID         uuid.UUID
	MatchID    uuid.UUID
	Block      string
	RowNo      string
	SeatNumber string
	Grade      string
	Price      int64
	Reserved   bool
}

type Reservation struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	MatchID uuid.UUID
	SeatID  uuid.UUID
	ResDate time.Time
	Status  string
}

type Payment struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	Amount        int64
	Method        string
	PayDate       time.Time
}

type CancelLogEntry struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	UserID        uuid.UUID
	CancelDate    time.Time
	Reason        *string
}

type AbuseFlag struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	MatchID    uuid.UUID
	EventType  string
	DetectedAt time.Time
}

// RequestLogEntry is the append-only record of a reservation attempt.
// User/match/seat are pointers because a malformed request may not
// resolve to existing rows.
type RequestLogEntry struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	MatchID    *uuid.UUID
	SeatID     *uuid.UUID
	Action     string
	Success    bool
	FailReason *string
	IP         string
	UserAgent  string
	CreatedAt  time.Time
}

// UserReservation is a reservation joined with its match, seat and
// payment for the my-reservations view. Payment is optional only as a
// defensive measure; under correct operation it is always present.
type UserReservation struct {
	Reservation Reservation
	Match       Match
	Seat        Seat
	Payment     *Payment
}

// MatchStats is the derived per-match aggregation, recomputed from
// matches, seats, reservations and payments on every call.
type MatchStats struct {
	MatchID          uuid.UUID
	MatchDate        time.Time
	Stadium          string
	TotalSeats       int
	SeatCount        int
	ReservedSeats    int
	OccupancyRate    float64
	TotalSales       int64
	ReservationCount int
}

// AbuseCandidate is a user whose lifetime cancel count crossed the
// reporting threshold, with one representative reservation id.
type AbuseCandidate struct {
	UserID        uuid.UUID
	ReservationID uuid.UUID
	CancelCount   int
}
