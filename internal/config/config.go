// Package config provides blitzbot configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without a zoneinfo database

	"blitzbot/internal/deal"
)

// Config holds blitzbot configuration. Values come from env vars or defaults.
type Config struct {
	// --- Slack ---

	// SlackBotToken is the bot user OAuth token (env: SLACK_BOT_TOKEN).
	SlackBotToken string

	// SlackAppToken is the app-level token (env: SLACK_APP_TOKEN).
	// When set, events arrive over Socket Mode instead of the webhook.
	SlackAppToken string

	// SlackSigningSecret verifies Events API webhook requests (env: SLACK_SIGNING_SECRET).
	SlackSigningSecret string

	// ReportChannel is where scheduled leaderboards are posted (env: SLACK_REPORT_CHANNEL).
	ReportChannel string

	// SlackDebug enables slack-go protocol logging (env: SLACK_DEBUG).
	SlackDebug bool

	// --- HTTP ---

	// ListenAddr is the HTTP listen address (env: LISTEN_ADDR).
	ListenAddr string

	// ShutdownTimeout bounds graceful HTTP shutdown (env: SHUTDOWN_TIMEOUT).
	ShutdownTimeout time.Duration

	// CronSecret gates the /cron/* endpoints (env: CRON_SECRET).
	// Empty disables them.
	CronSecret string

	// --- Ledger ---

	// LedgerDSN is a sqlite file path or a postgres:// URL (env: LEDGER_DSN).
	LedgerDSN string

	// Timezone is the IANA zone used for all calendar math (env: TIMEZONE).
	Timezone string

	// --- Deals ---

	// ChannelPrefix and ChannelSuffix define deal channel names such as
	// "blitz-socal-deals" (env: CHANNEL_PREFIX, CHANNEL_SUFFIX).
	// An empty suffix switches to the "<prefix>-<market>" rule.
	ChannelPrefix string
	ChannelSuffix string

	// MultiCount counts every size token in a message as its own deal
	// (env: DEAL_MULTI_COUNT). Default: one deal per message.
	MultiCount bool

	// GapDays is the silence that separates teams sharing a channel (env: GAP_DAYS).
	GapDays int

	// DedupCapacity bounds the recent-event ring (env: DEDUP_CAPACITY).
	DedupCapacity int

	// --- NATS ---

	// NatsURL enables ledger event publishing when set (env: NATS_URL).
	NatsURL string

	// NatsToken authenticates to NATS (env: NATS_TOKEN).
	NatsToken string

	// --- Process ---

	// LogLevel controls log verbosity: debug, info, warn, error (env: LOG_LEVEL).
	LogLevel string
}

// Parse reads configuration from environment variables.
func Parse() *Config {
	return &Config{
		// Slack
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackAppToken:      os.Getenv("SLACK_APP_TOKEN"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		ReportChannel:      os.Getenv("SLACK_REPORT_CHANNEL"),
		SlackDebug:         envBoolOr("SLACK_DEBUG", false),

		// HTTP
		ListenAddr:      envOr("LISTEN_ADDR", ":3000"),
		ShutdownTimeout: envDurationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
		CronSecret:      os.Getenv("CRON_SECRET"),

		// Ledger
		LedgerDSN: envOr("LEDGER_DSN", "blitzbot.db"),
		Timezone:  envOr("TIMEZONE", "America/Los_Angeles"),

		// Deals
		ChannelPrefix: envOr("CHANNEL_PREFIX", deal.DefaultChannelRule.Prefix),
		ChannelSuffix: envPresentOr("CHANNEL_SUFFIX", deal.DefaultChannelRule.Suffix),
		MultiCount:    envBoolOr("DEAL_MULTI_COUNT", false),
		GapDays:       envIntOr("GAP_DAYS", 5),
		DedupCapacity: envIntOr("DEDUP_CAPACITY", 512),

		// NATS
		NatsURL:   os.Getenv("NATS_URL"),
		NatsToken: os.Getenv("NATS_TOKEN"),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ChannelRule returns the configured deal channel convention.
func (c *Config) ChannelRule() deal.ChannelRule {
	return deal.ChannelRule{Prefix: c.ChannelPrefix, Suffix: c.ChannelSuffix}
}

// ValidateServe checks the settings the serve command cannot run without.
func (c *Config) ValidateServe() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is required")
	}
	if c.SlackAppToken == "" && c.SlackSigningSecret == "" {
		return fmt.Errorf("either SLACK_APP_TOKEN (Socket Mode) or SLACK_SIGNING_SECRET (Events API) is required")
	}
	if c.GapDays <= 0 {
		return fmt.Errorf("GAP_DAYS must be positive, got %d", c.GapDays)
	}
	if c.DedupCapacity <= 0 {
		return fmt.Errorf("DEDUP_CAPACITY must be positive, got %d", c.DedupCapacity)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envPresentOr is envOr, except that an explicitly empty value is kept.
func envPresentOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
