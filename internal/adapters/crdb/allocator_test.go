package crdb_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	"github.com/robertarktes/stadium-tickets/internal/domain"
	"golang.org/x/sync/errgroup"
)

func claim(ctx context.Context, repo *crdb.Repository, userID, matchID, seatID uuid.UUID) (domain.Reservation, error) {
	var res domain.Reservation
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		res, _, err = repo.ClaimSeat(ctx, tx, userID, matchID, seatID, 30000, "card")
		return err
	})
	return res, err
}

func TestClaimSeat_Success(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, "Stadium One", time.Now().Add(24*time.Hour), 100)
	seatID := seedSeat(t, pool, matchID, "A", "1", "1", 30000)

	res, err := claim(ctx, repo, userID, matchID, seatID)
	if err != nil {
		t.Fatalf("expected claim to succeed, got %v", err)
	}
	if res.Status != domain.StatusActive {
		t.Errorf("expected active reservation, got %s", res.Status)
	}

	var reserved bool
	if err := pool.QueryRow(ctx, `SELECT is_reserved FROM seats WHERE seat_id = $1`, seatID).Scan(&reserved); err != nil {
		t.Fatal(err)
	}
	if !reserved {
		t.Error("expected seat to be flagged reserved")
	}

	var amount int64
	var method string
	err = pool.QueryRow(ctx, `SELECT amount, method FROM payments WHERE res_id = $1`, res.ID).Scan(&amount, &method)
	if err != nil {
		t.Fatalf("expected payment row, got %v", err)
	}
	if amount != 30000 || method != "card" {
		t.Errorf("unexpected payment %d/%s", amount, method)
	}
}

func TestClaimSeat_SeatConflict(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	alice := seedUser(t, pool, "alice@example.com")
	bob := seedUser(t, pool, "bob@example.com")
	matchID := seedMatch(t, pool, "Stadium One", time.Now().Add(24*time.Hour), 100)
	seatID := seedSeat(t, pool, matchID, "A", "1", "1", 30000)

	if _, err := claim(ctx, repo, alice, matchID, seatID); err != nil {
		t.Fatal(err)
	}
	_, err := claim(ctx, repo, bob, matchID, seatID)
	if !errors.Is(err, domain.ErrSeatConflict) {
		t.Errorf("expected seat conflict, got %v", err)
	}
}

func TestClaimSeat_MatchMismatch(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchA := seedMatch(t, pool, "Stadium One", time.Now().Add(24*time.Hour), 100)
	matchB := seedMatch(t, pool, "Stadium Two", time.Now().Add(48*time.Hour), 100)
	seatOnB := seedSeat(t, pool, matchB, "A", "1", "1", 30000)

	_, err := claim(ctx, repo, userID, matchA, seatOnB)
	if !errors.Is(err, domain.ErrMatchMismatch) {
		t.Errorf("expected match mismatch, got %v", err)
	}
}

func TestClaimSeat_NotFound(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, "Stadium One", time.Now().Add(24*time.Hour), 100)
	seatID := seedSeat(t, pool, matchID, "A", "1", "1", 30000)

	if _, err := claim(ctx, repo, userID, uuid.New(), seatID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found for unknown match, got %v", err)
	}
	if _, err := claim(ctx, repo, userID, matchID, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found for unknown seat, got %v", err)
	}
	if _, err := claim(ctx, repo, uuid.New(), matchID, seatID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

func TestClaimSeat_QuotaExceeded(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, "Stadium One", time.Now().Add(24*time.Hour), 100)

	for i := 0; i < domain.MaxActiveSeatsPerMatch; i++ {
		seatID := seedSeat(t, pool, matchID, "A", "1", string(rune('1'+i)), 30000)
		if _, err := claim(ctx, repo, userID, matchID, seatID); err != nil {
			t.Fatalf("claim %d should succeed, got %v", i+1, err)
		}
	}

	fifth := seedSeat(t, pool, matchID, "A", "2", "1", 30000)
	_, err := claim(ctx, repo, userID, matchID, fifth)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("expected quota exceeded on 5th claim, got %v", err)
	}
}

func TestClaimSeat_ConcurrentSingleWinner(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	matchID := seedMatch(t, pool, "Stadium One", time.Now().Add(24*time.Hour), 100)
	seatID := seedSeat(t, pool, matchID, "A", "1", "1", 30000)

	const contenders = 8
	users := make([]uuid.UUID, contenders)
	for i := range users {
		users[i] = seedUser(t, pool, uuid.NewString()+"@example.com")
	}

	var wins int64
	g := new(errgroup.Group)
	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			_, err := claim(ctx, repo, userID, matchID, seatID)
			if err == nil {
				atomic.AddInt64(&wins, 1)
				return nil
			}
			// Losers must see the conflict or a retryable serialization
			// failure, never anything else.
			if errors.Is(err, domain.ErrSeatConflict) || errors.Is(err, domain.ErrSerializationFailure) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	var active int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM reservations WHERE seat_id = $1 AND status = 'active'
	`, seatID).Scan(&active)
	if err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Fatalf("expected exactly one active reservation, got %d", active)
	}
}
