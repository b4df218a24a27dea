// Package reservation owns the seat-reservation consistency engine:
// claims, cancellations and the abuse rules around them. Every mutation
// runs as one serializable transaction in the relational store; nothing
// here keeps in-process counters, so any number of replicas can run
// this code against the same database.
package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/stadium-tickets/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/stadium-tickets/internal/adapters/redis"
	"github.com/robertarktes/stadium-tickets/internal/domain"
	"github.com/robertarktes/stadium-tickets/internal/observability"
)

type Service struct {
	repo         *crdb.Repository
	cache        *redisadapter.Cache
	mirror       *mongoadapter.AuditMirror
	logger       observability.Logger
	claimLockTTL time.Duration
}

// NewService wires the engine. cache and mirror may be nil: the redis
// seat lock is a fast-path filter and the mongo mirror is best-effort;
// neither participates in correctness.
func NewService(repo *crdb.Repository, cache *redisadapter.Cache, mirror *mongoadapter.AuditMirror, logger observability.Logger, claimLockTTL time.Duration) *Service {
	return &Service{
		repo:         repo,
		cache:        cache,
		mirror:       mirror,
		logger:       logger,
		claimLockTTL: claimLockTTL,
	}
}

func (s *Service) ListMatches(ctx context.Context) ([]domain.Match, error) {
	return s.repo.ListMatches(ctx)
}

func (s *Service) ListSeats(ctx context.Context, matchID uuid.UUID) ([]domain.Seat, error) {
	return s.repo.ListSeats(ctx, matchID)
}

// CreateReservation claims a seat, persisting reservation, payment,
// seat flip, the outbox event and the success log row as one atomic
// unit. Every attempt, including rejected and malformed ones, leaves
// exactly one request-log entry.
func (s *Service) CreateReservation(ctx context.Context, in domain.CreateReservationInput, meta domain.CallerMeta) (*domain.Reservation, error) {
	if err := in.Validate(); err != nil {
		s.logAttempt(ctx, in, meta, false, err)
		observability.ClaimAttempts.WithLabelValues("validation").Inc()
		return nil, err
	}

	if s.cache != nil {
		ok, err := s.cache.AcquireSeatLock(ctx, in.MatchID.String(), in.SeatID.String(), in.UserID.String(), s.claimLockTTL)
		if err != nil {
			// Redis being down must not block claims; the store decides.
			s.logger.Warn("seat lock unavailable, falling through to store: ", err)
		} else if !ok {
			s.logAttempt(ctx, in, meta, false, domain.ErrSeatConflict)
			observability.ClaimAttempts.WithLabelValues("seat_conflict").Inc()
			return nil, domain.ErrSeatConflict
		}
	}

	successEntry := newAttemptEntry(in, meta, true, nil)

	var res domain.Reservation
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var pay domain.Payment
		var err error
		res, pay, err = s.repo.ClaimSeat(ctx, tx, in.UserID, in.MatchID, in.SeatID, in.Amount, in.Method)
		if err != nil {
			return err
		}

		rec := crdb.NewOutboxRecord("reservation", res.ID, crdb.EventReservationCreated, map[string]interface{}{
			"reservation_id": res.ID,
			"user_id":        res.UserID,
			"match_id":       res.MatchID,
			"seat_id":        res.SeatID,
			"amount":         pay.Amount,
			"method":         pay.Method,
		})
		if err := s.repo.InsertOutbox(ctx, tx, rec); err != nil {
			return err
		}

		return s.repo.InsertRequestLogTx(ctx, tx, successEntry)
	})
	if err != nil {
		if s.cache != nil {
			s.cache.ReleaseSeatLock(ctx, in.MatchID.String(), in.SeatID.String())
		}
		s.logAttempt(ctx, in, meta, false, err)
		observability.ClaimAttempts.WithLabelValues(claimOutcome(err)).Inc()
		return nil, err
	}

	observability.ClaimAttempts.WithLabelValues("success").Inc()
	s.mirrorEntry(ctx, successEntry)
	return &res, nil
}

func (s *Service) GetReservation(ctx context.Context, resID uuid.UUID) (*domain.Reservation, error) {
	return s.repo.GetReservation(ctx, resID)
}

func (s *Service) ListUserReservations(ctx context.Context, userID uuid.UUID) ([]domain.UserReservation, error) {
	return s.repo.ListUserReservations(ctx, userID)
}

// CancelReservation runs the cancel protocol under a row lock on the
// reservation. When the caller has already burned the cancel cap for
// this match, the attempt inserts a fresh abuse flag, commits it, and
// is rejected: the flag must survive even though the cancellation does
// not happen. Below the cap, status flip, seat release and cancel-log
// append commit together.
func (s *Service) CancelReservation(ctx context.Context, resID uuid.UUID) (*domain.Reservation, error) {
	var res *domain.Reservation
	var limited bool

	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := s.repo.GetReservationForUpdate(ctx, tx, resID)
		if err != nil {
			return err
		}
		if cur.Status == domain.StatusCancelled {
			return domain.ErrAlreadyCancelled
		}

		prior, err := s.repo.CountUserMatchCancels(ctx, tx, cur.UserID, cur.MatchID)
		if err != nil {
			return err
		}
		if prior >= domain.CancelLimitPerMatch {
			flag := domain.NewAbuseFlag(cur.UserID, cur.MatchID, domain.AbuseTooManyCancels)
			if err := s.repo.InsertAbuseFlag(ctx, tx, flag); err != nil {
				return err
			}
			rec := crdb.NewOutboxRecord("abuse_flag", flag.ID, crdb.EventAbuseFlagged, map[string]interface{}{
				"user_id":    flag.UserID,
				"match_id":   flag.MatchID,
				"event_type": flag.EventType,
			})
			if err := s.repo.InsertOutbox(ctx, tx, rec); err != nil {
				return err
			}
			limited = true
			return nil
		}

		if err := s.repo.MarkCancelled(ctx, tx, cur, nil); err != nil {
			return err
		}
		rec := crdb.NewOutboxRecord("reservation", cur.ID, crdb.EventReservationCancelled, map[string]interface{}{
			"reservation_id": cur.ID,
			"user_id":        cur.UserID,
			"match_id":       cur.MatchID,
			"seat_id":        cur.SeatID,
		})
		if err := s.repo.InsertOutbox(ctx, tx, rec); err != nil {
			return err
		}
		res = cur
		return nil
	})
	if err != nil {
		observability.CancelAttempts.WithLabelValues(cancelOutcome(err)).Inc()
		return nil, err
	}
	if limited {
		observability.AbuseFlagsTotal.Inc()
		observability.CancelAttempts.WithLabelValues("limit_exceeded").Inc()
		return nil, domain.ErrCancelLimitExceeded
	}

	if s.cache != nil {
		s.cache.ReleaseSeatLock(ctx, res.MatchID.String(), res.SeatID.String())
	}
	observability.CancelAttempts.WithLabelValues("success").Inc()
	return res, nil
}

func (s *Service) FindCancelAbuseCandidates(ctx context.Context) ([]domain.AbuseCandidate, error) {
	return s.repo.FindCancelAbuseCandidates(ctx)
}

func (s *Service) ListCancelHistory(ctx context.Context) ([]domain.CancelLogEntry, error) {
	return s.repo.ListCancelHistory(ctx)
}

func (s *Service) MatchStatistics(ctx context.Context) ([]domain.MatchStats, error) {
	return s.repo.MatchStatistics(ctx)
}

func (s *Service) LoginOrSignup(ctx context.Context, name, email, phone string) (*domain.User, bool, error) {
	if name == "" || email == "" {
		return nil, false, errors.Wrap(domain.ErrValidation, "name and email are required")
	}
	return s.repo.GetOrCreateUser(ctx, name, email, phone)
}

func (s *Service) AdminLogin(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, errors.Wrap(domain.ErrValidation, "email is required")
	}
	return s.repo.GetAdminByEmail(ctx, email)
}

// logAttempt writes a failed attempt's request-log row in its own
// statement; the attempt's transaction, if any, has already rolled
// back. The reason must be durable before the caller sees the error.
func (s *Service) logAttempt(ctx context.Context, in domain.CreateReservationInput, meta domain.CallerMeta, success bool, cause error) {
	entry := newAttemptEntry(in, meta, success, cause)
	if err := s.repo.InsertRequestLog(ctx, entry); err != nil {
		s.logger.Error("failed to append request log: ", err)
	}
	s.mirrorEntry(ctx, entry)
}

func (s *Service) mirrorEntry(ctx context.Context, entry domain.RequestLogEntry) {
	if s.mirror == nil {
		return
	}
	// Mirror errors are logged inside the adapter and swallowed here.
	_ = s.mirror.Mirror(ctx, entry)
}

func newAttemptEntry(in domain.CreateReservationInput, meta domain.CallerMeta, success bool, cause error) domain.RequestLogEntry {
	entry := domain.RequestLogEntry{
		ID:        uuid.New(),
		Action:    domain.ActionReserveAttempt,
		Success:   success,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	if in.UserID != uuid.Nil {
		id := in.UserID
		entry.UserID = &id
	}
	if in.MatchID != uuid.Nil {
		id := in.MatchID
		entry.MatchID = &id
	}
	if in.SeatID != uuid.Nil {
		id := in.SeatID
		entry.SeatID = &id
	}
	if cause != nil {
		reason := cause.Error()
		entry.FailReason = &reason
	}
	return entry
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrSeatConflict):
		return "seat_conflict"
	case errors.Is(err, domain.ErrMatchMismatch):
		return "match_mismatch"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrSerializationFailure):
		return "serialization_failure"
	default:
		return "error"
	}
}

func cancelOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSerializationFailure):
		return "serialization_failure"
	default:
		return "error"
	}
}
