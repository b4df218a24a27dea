package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	"github.com/robertarktes/stadium-tickets/internal/domain"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"github.com/robertarktes/stadium-tickets/internal/reservation"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

var testMeta = domain.CallerMeta{IP: "10.0.0.1", UserAgent: "svc-test"}

// newTestService runs the engine against a real cockroach container
// with no redis and no mongo attached, which is a supported deployment
// shape: the store alone decides correctness.
func newTestService(t *testing.T) (*reservation.Service, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}

	dsn := fmt.Sprintf("postgresql://root@%s:%s/tickets?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, "CREATE DATABASE IF NOT EXISTS tickets"); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, crdb.Schema); err != nil {
		t.Fatal(err)
	}

	repo := crdb.NewRepository(pool)
	svc := reservation.NewService(repo, nil, nil, observability.NewLogger(), 5*time.Second)
	return svc, pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (user_id, name, email, phone, role)
		VALUES ($1, $2, $3, '', 'user')
	`, id, "user "+email, email)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func seedMatch(t *testing.T, pool *pgxpool.Pool, totalSeats int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	home, away := uuid.New(), uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO teams (team_id, team_name) VALUES ($1, $2), ($3, $4)
	`, home, "home "+home.String(), away, "away "+away.String())
	if err != nil {
		t.Fatal(err)
	}

	id := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO matches (match_id, home_team_id, away_team_id, match_date, stadium, total_seats)
		VALUES ($1, $2, $3, $4, 'Test Stadium', $5)
	`, id, home, away, time.Now().Add(24*time.Hour), totalSeats)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func seedSeat(t *testing.T, pool *pgxpool.Pool, matchID uuid.UUID, number string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO seats (seat_id, match_id, block, row_no, seat_number, grade, price)
		VALUES ($1, $2, 'A', '1', $3, 'standard', 30000)
	`, id, matchID, number)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func claimInput(userID, matchID, seatID uuid.UUID) domain.CreateReservationInput {
	return domain.CreateReservationInput{
		UserID:  userID,
		MatchID: matchID,
		SeatID:  seatID,
		Amount:  30000,
		Method:  "card",
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateReservation_WritesEverythingAtomically(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)
	seatID := seedSeat(t, pool, matchID, "1")

	res, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusActive {
		t.Errorf("expected active reservation, got %q", res.Status)
	}

	if n := countRows(t, pool, `SELECT count(*) FROM payments WHERE res_id = $1`, res.ID); n != 1 {
		t.Errorf("expected 1 payment row, got %d", n)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
		res.ID, crdb.EventReservationCreated); n != 1 {
		t.Errorf("expected 1 outbox event, got %d", n)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM request_log WHERE user_id = $1 AND success`, userID); n != 1 {
		t.Errorf("expected 1 success log row, got %d", n)
	}
}

func TestCreateReservation_FailureLeavesLogRow(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, pool, "a@example.com")
	bob := seedUser(t, pool, "b@example.com")
	matchID := seedMatch(t, pool, 100)
	seatID := seedSeat(t, pool, matchID, "1")

	if _, err := svc.CreateReservation(ctx, claimInput(alice, matchID, seatID), testMeta); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CreateReservation(ctx, claimInput(bob, matchID, seatID), testMeta)
	if !errors.Is(err, domain.ErrSeatConflict) {
		t.Fatalf("expected ErrSeatConflict, got %v", err)
	}

	// The rejected attempt's transaction rolled back, yet its log row
	// with the failure reason must still be there.
	var reason string
	err = pool.QueryRow(ctx, `
		SELECT fail_reason FROM request_log WHERE user_id = $1 AND NOT success
	`, bob).Scan(&reason)
	if err != nil {
		t.Fatal(err)
	}
	if reason != domain.ErrSeatConflict.Error() {
		t.Errorf("unexpected fail reason %q", reason)
	}

	if n := countRows(t, pool, `SELECT count(*) FROM reservations WHERE user_id = $1`, bob); n != 0 {
		t.Errorf("expected no reservation for the loser, got %d", n)
	}
}

func TestCreateReservation_ValidationRejected(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	in := claimInput(uuid.Nil, uuid.New(), uuid.New())
	_, err := svc.CreateReservation(ctx, in, testMeta)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if n := countRows(t, pool, `SELECT count(*) FROM request_log WHERE NOT success`); n != 1 {
		t.Errorf("expected malformed attempt logged, got %d rows", n)
	}
}

func TestCreateReservation_QuotaPerUserPerMatch(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)

	for i := 0; i < domain.MaxActiveSeatsPerMatch; i++ {
		seatID := seedSeat(t, pool, matchID, fmt.Sprintf("%d", i+1))
		if _, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta); err != nil {
			t.Fatalf("claim %d: %v", i+1, err)
		}
	}

	extra := seedSeat(t, pool, matchID, "99")
	_, err := svc.CreateReservation(ctx, claimInput(userID, matchID, extra), testMeta)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestCancelReservation_Lifecycle(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)
	seatID := seedSeat(t, pool, matchID, "1")

	res, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := svc.CancelReservation(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("expected cancelled status, got %q", cancelled.Status)
	}

	var reserved bool
	if err := pool.QueryRow(ctx, `SELECT is_reserved FROM seats WHERE seat_id = $1`, seatID).Scan(&reserved); err != nil {
		t.Fatal(err)
	}
	if reserved {
		t.Error("expected seat released")
	}
	if n := countRows(t, pool, `SELECT count(*) FROM cancel_log WHERE res_id = $1`, res.ID); n != 1 {
		t.Errorf("expected 1 cancel-log row, got %d", n)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
		res.ID, crdb.EventReservationCancelled); n != 1 {
		t.Errorf("expected cancel outbox event, got %d", n)
	}

	if _, err := svc.CancelReservation(ctx, res.ID); !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled on repeat, got %v", err)
	}
}

func TestCancelReservation_ConcurrentSingleMutation(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)
	seatID := seedSeat(t, pool, matchID, "1")

	res, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}

	const contenders = 6
	var successes int64
	g := new(errgroup.Group)
	for i := 0; i < contenders; i++ {
		g.Go(func() error {
			_, err := svc.CancelReservation(ctx, res.ID)
			if err == nil {
				atomic.AddInt64(&successes, 1)
				return nil
			}
			// Losers observe the completed cancel or a retryable
			// serialization failure, never anything else.
			if errors.Is(err, domain.ErrAlreadyCancelled) || errors.Is(err, domain.ErrSerializationFailure) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful cancel, got %d", successes)
	}

	if n := countRows(t, pool, `SELECT count(*) FROM cancel_log WHERE res_id = $1`, res.ID); n != 1 {
		t.Errorf("expected a single cancel-log row, got %d", n)
	}
	var reserved bool
	if err := pool.QueryRow(ctx, `SELECT is_reserved FROM seats WHERE seat_id = $1`, seatID).Scan(&reserved); err != nil {
		t.Fatal(err)
	}
	if reserved {
		t.Error("expected seat released exactly once")
	}
}

func TestCancelReservation_ConcurrentCancelsNeverExceedCap(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)

	// Burn two of the three tolerated cancels, then race the user's two
	// remaining reservations. Both racers read a prior count of 2; at
	// most one of them may commit a third cancel-log row.
	for i := 0; i < 2; i++ {
		claimAndCancel(ctx, t, svc, pool, userID, matchID, fmt.Sprintf("%d", i+1))
	}

	seatA := seedSeat(t, pool, matchID, "10")
	resA, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatA), testMeta)
	if err != nil {
		t.Fatal(err)
	}
	seatB := seedSeat(t, pool, matchID, "11")
	resB, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatB), testMeta)
	if err != nil {
		t.Fatal(err)
	}

	g := new(errgroup.Group)
	for _, id := range []uuid.UUID{resA.ID, resB.ID} {
		id := id
		g.Go(func() error {
			_, err := svc.CancelReservation(ctx, id)
			switch {
			case err == nil,
				errors.Is(err, domain.ErrSerializationFailure),
				errors.Is(err, domain.ErrCancelLimitExceeded):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}

	n := countRows(t, pool, `
		SELECT count(*)
		FROM cancel_log c
		JOIN reservations r ON c.res_id = r.res_id
		WHERE c.user_id = $1 AND r.match_id = $2
	`, userID, matchID)
	if n > domain.CancelLimitPerMatch {
		t.Fatalf("cancel cap breached: %d cancel-log rows for the user and match", n)
	}
}

// claimAndCancel burns one cancel for the user on the given match.
func claimAndCancel(ctx context.Context, t *testing.T, svc *reservation.Service, pool *pgxpool.Pool, userID, matchID uuid.UUID, seatNo string) {
	t.Helper()
	seatID := seedSeat(t, pool, matchID, seatNo)
	res, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CancelReservation(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
}

func TestCancelReservation_CapBlocksFourthAndFlags(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)

	for i := 0; i < domain.CancelLimitPerMatch; i++ {
		claimAndCancel(ctx, t, svc, pool, userID, matchID, fmt.Sprintf("%d", i+1))
	}
	if n := countRows(t, pool, `SELECT count(*) FROM abuse_log WHERE user_id = $1`, userID); n != 0 {
		t.Fatalf("expected no flag while under the cap, got %d", n)
	}

	seatID := seedSeat(t, pool, matchID, "50")
	res, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.CancelReservation(ctx, res.ID)
	if !errors.Is(err, domain.ErrCancelLimitExceeded) {
		t.Fatalf("expected ErrCancelLimitExceeded, got %v", err)
	}

	// The reservation stayed active and its seat stayed taken, but the
	// flag committed.
	got, err := svc.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("expected blocked cancel to leave reservation active, got %q", got.Status)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM abuse_log WHERE user_id = $1 AND match_id = $2 AND event_type = $3`,
		userID, matchID, domain.AbuseTooManyCancels); n != 1 {
		t.Errorf("expected 1 abuse flag, got %d", n)
	}
	if n := countRows(t, pool, `SELECT count(*) FROM outbox WHERE event_type = $1`, crdb.EventAbuseFlagged); n != 1 {
		t.Errorf("expected abuse outbox event, got %d", n)
	}
}

func TestCancelReservation_EveryBlockedAttemptFlags(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchID := seedMatch(t, pool, 100)

	for i := 0; i < domain.CancelLimitPerMatch; i++ {
		claimAndCancel(ctx, t, svc, pool, userID, matchID, fmt.Sprintf("%d", i+1))
	}

	seatID := seedSeat(t, pool, matchID, "50")
	res, err := svc.CreateReservation(ctx, claimInput(userID, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}

	repo := crdb.NewRepository(pool)
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := svc.CancelReservation(ctx, res.ID); !errors.Is(err, domain.ErrCancelLimitExceeded) {
			t.Fatalf("attempt %d: expected ErrCancelLimitExceeded, got %v", attempt, err)
		}
		n, err := repo.CountAbuseFlags(ctx, userID, matchID)
		if err != nil {
			t.Fatal(err)
		}
		if n != attempt {
			t.Fatalf("attempt %d: expected %d flags, got %d", attempt, attempt, n)
		}
	}
}

func TestCancelReservation_CapScopedToMatch(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	userID := seedUser(t, pool, "a@example.com")
	matchA := seedMatch(t, pool, 100)
	matchB := seedMatch(t, pool, 100)

	for i := 0; i < domain.CancelLimitPerMatch; i++ {
		claimAndCancel(ctx, t, svc, pool, userID, matchA, fmt.Sprintf("%d", i+1))
	}

	// Cancels on match A must not count against match B.
	seatID := seedSeat(t, pool, matchB, "1")
	res, err := svc.CreateReservation(ctx, claimInput(userID, matchB, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CancelReservation(ctx, res.ID); err != nil {
		t.Fatalf("expected cancel on the other match to pass, got %v", err)
	}
}

func TestSeatReleasedByCancelIsClaimable(t *testing.T) {
	svc, pool := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, pool, "a@example.com")
	bob := seedUser(t, pool, "b@example.com")
	matchID := seedMatch(t, pool, 100)
	seatID := seedSeat(t, pool, matchID, "1")

	aliceRes, err := svc.CreateReservation(ctx, claimInput(alice, matchID, seatID), testMeta)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CreateReservation(ctx, claimInput(bob, matchID, seatID), testMeta); !errors.Is(err, domain.ErrSeatConflict) {
		t.Fatalf("expected ErrSeatConflict while held, got %v", err)
	}

	if _, err := svc.CancelReservation(ctx, aliceRes.ID); err != nil {
		t.Fatal(err)
	}

	bobRes, err := svc.CreateReservation(ctx, claimInput(bob, matchID, seatID), testMeta)
	if err != nil {
		t.Fatalf("expected released seat to be claimable, got %v", err)
	}
	if bobRes.SeatID != seatID {
		t.Error("expected the reclaimed seat")
	}

	if n := countRows(t, pool, `
		SELECT count(*) FROM reservations WHERE seat_id = $1 AND status = 'active'
	`, seatID); n != 1 {
		t.Errorf("expected exactly 1 active reservation on the seat, got %d", n)
	}
}

func TestLoginOrSignup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, created, err := svc.LoginOrSignup(ctx, "Alice", "alice@example.com", "010-1111")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("expected a new user")
	}

	_, created, err = svc.LoginOrSignup(ctx, "Alice", "alice@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected repeat login to reuse the user")
	}

	if _, _, err := svc.LoginOrSignup(ctx, "", "x@example.com", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing name, got %v", err)
	}

	list, err := svc.ListUserReservations(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected fresh user to have no reservations, got %d", len(list))
	}
}
