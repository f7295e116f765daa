package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DBPath           string
	Workers          int
	SweepDelayMillis int
	StalenessMinutes int
}

func Load() Config {
	// Optional .env for local development; env vars take precedence.
	_ = godotenv.Load()

	return Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "marketsync.db"),
		Workers:          getEnvInt("WORKERS", 5),
		SweepDelayMillis: getEnvInt("SWEEP_DELAY_MS", 300),
		StalenessMinutes: getEnvInt("STALENESS_MINUTES", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
