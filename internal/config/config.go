package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the service reads from the environment. A .env
// file in the working directory is loaded first when present.
type Config struct {
	// HTTPAddr is the listen address for the HTTP boundary.
	HTTPAddr string
	// DatabaseURL selects the Postgres store when set; empty means the
	// in-memory store.
	DatabaseURL string
	// KafkaBrokers enables event publishing when non-empty.
	KafkaBrokers []string
	// JWTSecret signs and verifies boundary bearer tokens.
	JWTSecret string
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		JWTSecret:    getenv("JWT_SECRET", "dev-secret"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
