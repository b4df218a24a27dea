package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/stadium-tickets/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/stadium-tickets/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/stadium-tickets/internal/adapters/redis"
	"github.com/robertarktes/stadium-tickets/internal/config"
	httphandler "github.com/robertarktes/stadium-tickets/internal/http"
	"github.com/robertarktes/stadium-tickets/internal/idempotency"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"github.com/robertarktes/stadium-tickets/internal/rateLimit"
	"github.com/robertarktes/stadium-tickets/internal/reservation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	var mirror *mongoadapter.AuditMirror
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mirror = mongoadapter.NewAuditMirror(mongoClient.Database("tickets"), logger)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempTTL)
	rl := rateLimit.NewRateLimiter(cache)

	svc := reservation.NewService(repo, cache, mirror, logger, cfg.ClaimLockTTL)
	handlers := httphandler.NewHandlers(svc, idemp, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
