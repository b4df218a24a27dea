package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	HTTPAddr     string
	ClaimLockTTL time.Duration
	IdempTTL     time.Duration
	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	claimTTL, _ := time.ParseDuration(os.Getenv("CLAIM_LOCK_TTL"))
	if claimTTL == 0 {
		claimTTL = 5 * time.Second
	}
	idempTTL, _ := time.ParseDuration(os.Getenv("IDEMP_TTL"))
	if idempTTL == 0 {
		idempTTL = time.Hour
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		HTTPAddr:     addr,
		ClaimLockTTL: claimTTL,
		IdempTTL:     idempTTL,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
