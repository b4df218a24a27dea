package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"

	// MaxActiveSeatsPerMatch caps simultaneous active reservations a
	// user may hold for one match.
	MaxActiveSeatsPerMatch = 4

	// CancelLimitPerMatch caps lifetime successful cancellations per
	// user per match. The attempt after the cap is blocked and flagged.
	CancelLimitPerMatch = 3

	AbuseTooManyCancels = "too_many_cancels"

	ActionReserveAttempt = "reserve_attempt"
)

func NewReservation(userID, matchID, seatID uuid.UUID) Reservation {
	return Reservation{
		ID:      uuid.New(),
		UserID:  userID,
		MatchID: matchID,
		SeatID:  seatID,
		ResDate: time.Now().UTC(),
		Status:  StatusActive,
	}
}

func NewPayment(reservationID uuid.UUID, amount int64, method string) Payment {
	return Payment{
		ID:            uuid.New(),
		ReservationID: reservationID,
		Amount:        amount,
		Method:        method,
		PayDate:       time.Now().UTC(),
	}
}

func NewAbuseFlag(userID, matchID uuid.UUID, eventType string) AbuseFlag {
	return AbuseFlag{
		ID:         uuid.New(),
		UserID:     userID,
		MatchID:    matchID,
		EventType:  eventType,
		DetectedAt: time.Now().UTC(),
	}
}

type CreateReservationInput struct {
	UserID  uuid.UUID
	MatchID uuid.UUID
	SeatID  uuid.UUID
	Amount  int64
	Method  string
}

func (in CreateReservationInput) Validate() error {
	switch {
	case in.UserID == uuid.Nil:
		return errors.Wrap(ErrValidation, "user_id is required")
	case in.MatchID == uuid.Nil:
		return errors.Wrap(ErrValidation, "match_id is required")
	case in.SeatID == uuid.Nil:
		return errors.Wrap(ErrValidation, "seat_id is required")
	case in.Amount <= 0:
		return errors.Wrap(ErrValidation, "amount must be positive")
	case in.Method == "":
		return errors.Wrap(ErrValidation, "method is required")
	}
	return nil
}

// CallerMeta travels with a reservation attempt into the request log.
type CallerMeta struct {
	IP        string
	UserAgent string
}
