// Package config is environment-driven configuration for the knobs this
// repo's session engine actually needs: the skipped-key bounds already
// live as constants in protocol/ratchet, so what's left to configure is
// deployment-shaped — addresses, the default cipher suite pack, and the
// OPK replenishment threshold.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"e2ee/account"
	"e2ee/crypto/suite"
)

// Config holds every environment-derived setting this repo reads at
// startup.
type Config struct {
	ServerAddress     string
	RedisAddress      string
	WebSocketPath     string
	DefaultPackID     string
	OPKBatchSize      int
	OPKReplenishAt    int
	InviteGraceMillis int64
}

// Load reads a .env file if present via github.com/joho/godotenv,
// silently ignored if absent, then layers environment variables over
// the defaults below.
func Load(logger *logrus.Logger) Config {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Debugf("config: no .env file loaded: %v", err)
	}

	cfg := Config{
		ServerAddress:     "localhost:8080",
		RedisAddress:      "localhost:6379",
		WebSocketPath:     "/ws",
		DefaultPackID:     suite.DefaultPackID,
		OPKBatchSize:      account.DefaultOPKBatchSize,
		OPKReplenishAt:    account.ReplenishThreshold,
		InviteGraceMillis: 30_000, // invite considered stale after 30s or one successful decrypt
	}

	if v := os.Getenv("E2EE_SERVER_ADDRESS"); v != "" {
		cfg.ServerAddress = v
	}
	if v := os.Getenv("E2EE_REDIS_ADDRESS"); v != "" {
		cfg.RedisAddress = v
	}
	if v := os.Getenv("E2EE_WEBSOCKET_PATH"); v != "" {
		cfg.WebSocketPath = v
	}
	if v := os.Getenv("E2EE_DEFAULT_PACK_ID"); v != "" {
		cfg.DefaultPackID = v
	}
	if v, ok := parseIntEnv("E2EE_OPK_BATCH_SIZE", logger); ok {
		cfg.OPKBatchSize = v
	}
	if v, ok := parseIntEnv("E2EE_OPK_REPLENISH_AT", logger); ok {
		cfg.OPKReplenishAt = v
	}
	if v, ok := parseIntEnv("E2EE_INVITE_GRACE_MILLIS", logger); ok {
		cfg.InviteGraceMillis = int64(v)
	}

	return cfg
}

func parseIntEnv(key string, logger *logrus.Logger) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		if logger != nil {
			logger.Warnf("config: ignoring invalid %s=%q: %v", key, raw, err)
		}
		return 0, false
	}
	return v, true
}
