package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Remote vault API
	VaultBaseURL    string
	VaultFetchLimit int

	// Chat completion backend
	ChatAPIURL string

	// Identity provider token verification
	JWTSecret string

	// AMQP (optional; empty URL disables event publication)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Reconcile worker
	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileBatchSize  int
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/zerobudget.db"),

		VaultBaseURL:    getEnv("VAULT_BASE_URL", "http://localhost:3001/api/vault"),
		VaultFetchLimit: getEnvInt("VAULT_FETCH_LIMIT", 8),

		ChatAPIURL: getEnv("CHAT_API_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "zerobudget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "intent_repairs"),

		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileStaleAfter: getEnvDuration("RECONCILE_STALE_AFTER", 5*time.Minute),
		ReconcileBatchSize:  getEnvInt("RECONCILE_BATCH_SIZE", 50),
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.VaultBaseURL == "" {
		errs = append(errs, "vault base URL cannot be empty")
	} else if u, err := url.Parse(c.VaultBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("invalid vault base URL '%s': must be an http(s) URL", c.VaultBaseURL))
	}

	if c.VaultFetchLimit < 1 {
		errs = append(errs, fmt.Sprintf("invalid vault fetch limit %d: must be at least 1", c.VaultFetchLimit))
	}

	if c.ChatAPIURL != "" {
		if u, err := url.Parse(c.ChatAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("invalid chat API URL '%s': must be an http(s) URL", c.ChatAPIURL))
		}
	}

	if c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET must be set")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ReconcileInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 second", c.ReconcileInterval))
	}
	if c.ReconcileStaleAfter < time.Second {
		errs = append(errs, fmt.Sprintf("invalid reconcile stale-after %v: must be at least 1 second", c.ReconcileStaleAfter))
	}
	if c.ReconcileBatchSize < 1 || c.ReconcileBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid reconcile batch size %d: must be between 1 and 1000", c.ReconcileBatchSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
