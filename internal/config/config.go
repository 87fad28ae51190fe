// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLen = 32

// Config holds the application configuration.
type Config struct {
	HTTPAddr         string
	DatabasePath     string
	LogLevel         string
	SessionSecret    string
	SessionTTL       time.Duration
	AdminEmail       string
	AdminPassword    string
	FeedPollInterval time.Duration
	TrustPeerAddress bool
	SecureCookies    bool

	RedisURL     string
	RedisChannel string

	TelegramBotToken string
	NotifyChats      []int64
	AllowedUsers     []int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	secret := os.Getenv("SESSION_SECRET")
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSecretLen)
	}

	adminEmail := strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if (adminEmail == "") != (adminPassword == "") {
		return nil, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	sessionTTL, err := durationEnv("SESSION_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}
	pollInterval, err := durationEnv("FEED_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	trustPeer, err := boolEnv("TRUST_PEER_ADDRESS", false)
	if err != nil {
		return nil, err
	}
	secureCookies, err := boolEnv("SECURE_COOKIES", true)
	if err != nil {
		return nil, err
	}

	notifyChats, err := idListEnv("TELEGRAM_NOTIFY_CHATS")
	if err != nil {
		return nil, err
	}
	allowedUsers, err := idListEnv("ALLOWED_USERS")
	if err != nil {
		return nil, err
	}
	if os.Getenv("TELEGRAM_BOT_TOKEN") != "" && len(allowedUsers) == 0 {
		return nil, fmt.Errorf("ALLOWED_USERS is required when TELEGRAM_BOT_TOKEN is set")
	}

	return &Config{
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/leads.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		SessionSecret:    secret,
		SessionTTL:       sessionTTL,
		AdminEmail:       adminEmail,
		AdminPassword:    adminPassword,
		FeedPollInterval: pollInterval,
		TrustPeerAddress: trustPeer,
		SecureCookies:    secureCookies,
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisChannel:     envOrDefault("REDIS_CHANNEL", "comingsoon:subscribers"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		NotifyChats:      notifyChats,
		AllowedUsers:     allowedUsers,
	}, nil
}

// TelegramEnabled reports whether the Telegram bot should run.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsUserAllowed checks whether a Telegram user ID is in the allow list.
// An empty allow list permits nobody.
func (c *Config) IsUserAllowed(userID int64) bool {
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func idListEnv(key string) ([]int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
