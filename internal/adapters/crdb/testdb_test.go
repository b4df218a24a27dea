package crdb_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestRepo starts a single-node cockroach container, applies the
// schema and returns a repository bound to it. The container is torn
// down with the test.
func newTestRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
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

	return crdb.NewRepository(pool), pool
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

func seedMatch(t *testing.T, pool *pgxpool.Pool, stadium string, matchDate time.Time, totalSeats int) uuid.UUID {
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
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, home, away, matchDate, stadium, totalSeats)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func seedSeat(t *testing.T, pool *pgxpool.Pool, matchID uuid.UUID, block, rowNo, number string, price int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO seats (seat_id, match_id, block, row_no, seat_number, grade, price)
		VALUES ($1, $2, $3, $4, $5, 'standard', $6)
	`, id, matchID, block, rowNo, number, price)
	if err != nil {
		t.Fatal(err)
	}
	return id
}
