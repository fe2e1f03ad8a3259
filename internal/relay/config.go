// Package relay is the reference relay server nhd talks to: REST under /api,
// the /ws live channel, /health and /metrics.
package relay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr   = ":8088"
	DefaultDBPath = "nhrelay.db"
)

// Config is the relay configuration, read from the environment.
type Config struct {
	Addr        string
	DBPath      string
	JWTSecret   string
	CORSOrigins []string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	BcryptCost  int
	Debug       bool
}

// LoadConfig loads envFile into the environment when it exists (variables
// already set win) and reads RELAY_* and CORS_ORIGINS.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Addr:        getEnv("RELAY_ADDR", DefaultAddr),
		DBPath:      getEnv("RELAY_DB", DefaultDBPath),
		JWTSecret:   os.Getenv("RELAY_JWT_SECRET"),
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
		Debug:       os.Getenv("RELAY_DEBUG") == "1",
	}
	var err error
	if cfg.AccessTTL, err = durationEnv("RELAY_ACCESS_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = durationEnv("RELAY_REFRESH_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("RELAY_JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
