package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/stadium-tickets/internal/adapters/mongo"
	"github.com/robertarktes/stadium-tickets/internal/adapters/rabbit"
	"github.com/robertarktes/stadium-tickets/internal/config"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	var mirror *mongoadapter.AuditMirror
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mirror = mongoadapter.NewAuditMirror(mongoClient.Database("tickets"), logger)
	}

	worker := NewAbuseScanner(repo, rabbitPub, mirror, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, 5*time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown abuse scanner")
}

// AbuseScanner periodically sweeps the cancel log for users at or over
// the reporting threshold and publishes a summary for downstream
// consumers. Enforcement happens inline in the cancel path; this worker
// only reports.
type AbuseScanner struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	mirror    *mongoadapter.AuditMirror
	logger    observability.Logger
}

// NewAbuseScanner builds the sweep worker. mirror may be nil; the
// recent-failure enrichment is then omitted from the summary.
func NewAbuseScanner(repo *crdb.Repository, rabbitPub *rabbit.Publisher, mirror *mongoadapter.AuditMirror, logger observability.Logger) *AbuseScanner {
	return &AbuseScanner{repo: repo, rabbitPub: rabbitPub, mirror: mirror, logger: logger}
}

func (w *AbuseScanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweepWithRetry(ctx); err != nil {
				w.logger.Error("abuse sweep failed after retries: ", err)
			}
		}
	}
}

func (w *AbuseScanner) sweepWithRetry(ctx context.Context) error {
	maxRetries := 3
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = w.sweep(ctx); err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

func (w *AbuseScanner) sweep(ctx context.Context) error {
	candidates, err := w.repo.FindCancelAbuseCandidates(ctx)
	if err != nil {
		return err
	}
	observability.AbuseCandidatesGauge.Set(float64(len(candidates)))

	users := make([]map[string]interface{}, 0, len(candidates))
	for _, c := range candidates {
		users = append(users, map[string]interface{}{
			"user_id":      c.UserID,
			"res_id":       c.ReservationID,
			"cancel_count": c.CancelCount,
		})
	}
	summary := map[string]interface{}{
		"scanned_at": time.Now().UTC().Format(time.RFC3339),
		"candidates": users,
	}
	if w.mirror != nil {
		failures, err := w.mirror.RecentFailures(ctx, time.Now().Add(-24*time.Hour), 500)
		if err != nil {
			// The mirror is best-effort; the summary goes out without it.
			w.logger.Warn("failed to read recent failures from mirror: ", err)
		} else {
			summary["recent_failed_attempts"] = len(failures)
		}
	}

	payload, _ := json.Marshal(summary)
	return w.rabbitPub.PublishJSON(ctx, "abuse.scan_completed", "", payload)
}
