package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the scoring service.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	ScoringRoles         []string
	StandingsRepairEvery time.Duration
	ReportArchiveEnabled bool
	R2AccountID          string
	R2AccessKeyID        string
	R2SecretAccessKey    string
	R2BucketName         string
	R2PublicBaseURL      string
}

// Load reads configuration from the environment, optionally seeded from a
// local .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	repairEvery := 1 * time.Minute
	if raw := os.Getenv("STANDINGS_REPAIR_INTERVAL"); raw != "" {
		repairEvery, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid STANDINGS_REPAIR_INTERVAL: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:          dbURL,
		JWTSecretKey:         jwtKey,
		ServerPort:           port,
		ScoringRoles:         []string{"organizer", "referee"},
		StandingsRepairEvery: repairEvery,
		R2AccountID:          os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:        os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:    os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:         os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:      os.Getenv("R2_PUBLIC_BASE_URL"),
	}
	cfg.ReportArchiveEnabled = cfg.R2AccountID != "" && cfg.R2AccessKeyID != "" &&
		cfg.R2SecretAccessKey != "" && cfg.R2BucketName != "" && cfg.R2PublicBaseURL != ""

	return cfg, nil
}
