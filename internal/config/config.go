// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full service configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	OperatorAddress string
	PlatformAddress string
	CharityAddress  string

	TicketPrice         decimal.Decimal
	MaxTicketsPerPlayer int
	CardPrice           decimal.Decimal
	MinBet              decimal.Decimal
	MaxBet              decimal.Decimal

	// OracleMode selects the randomness coordinator: "local" fulfills
	// in-process, "external" waits for the HTTP fulfill endpoint.
	OracleMode  string
	OracleDelay time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		OperatorAddress: getEnv("OPERATOR_ADDRESS", "0x0000000000000000000000000000000000000001"),
		PlatformAddress: getEnv("PLATFORM_ADDRESS", "0x0000000000000000000000000000000000000002"),
		CharityAddress:  getEnv("CHARITY_ADDRESS", "0x0000000000000000000000000000000000000003"),
		OracleMode:      getEnv("ORACLE_MODE", "local"),
	}

	var err error
	if cfg.TicketPrice, err = decimalEnv("TICKET_PRICE", "1"); err != nil {
		return Config{}, err
	}
	if cfg.CardPrice, err = decimalEnv("CARD_PRICE", "1"); err != nil {
		return Config{}, err
	}
	if cfg.MinBet, err = decimalEnv("MIN_BET", "1"); err != nil {
		return Config{}, err
	}
	if cfg.MaxBet, err = decimalEnv("MAX_BET", "1000"); err != nil {
		return Config{}, err
	}
	if cfg.MaxTicketsPerPlayer, err = intEnv("MAX_TICKETS_PER_PLAYER", 100); err != nil {
		return Config{}, err
	}
	if cfg.OracleDelay, err = durationEnv("ORACLE_DELAY", 2*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.OracleMode != "local" && cfg.OracleMode != "external" {
		return Config{}, fmt.Errorf("config: ORACLE_MODE must be local or external, got %q", cfg.OracleMode)
	}
	if cfg.MinBet.GreaterThan(cfg.MaxBet) {
		return Config{}, fmt.Errorf("config: MIN_BET %s exceeds MAX_BET %s", cfg.MinBet, cfg.MaxBet)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("config: %s must be positive, got %s", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: %s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
}
