package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"blitzbot/internal/leaderboard"
	"blitzbot/internal/ledger"
	"blitzbot/internal/metrics"
	"blitzbot/internal/period"
)

// CronSecretHeader carries the shared secret on scheduled requests.
const CronSecretHeader = "X-Cron-Secret"

// CronConfig holds configuration for the scheduled endpoints.
type CronConfig struct {
	Secret     string
	Channel    string // where leaderboards and archive notices are posted
	Dispatcher *Dispatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Cron serves the externally scheduled jobs: daily and weekly leaderboard
// posts and the monthly ledger rotation.
type Cron struct {
	secret  string
	channel string
	d       *Dispatcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCron creates the scheduled-job handlers.
func NewCron(cfg CronConfig) *Cron {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cron{
		secret:  cfg.Secret,
		channel: cfg.Channel,
		d:       cfg.Dispatcher,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Register mounts /cron/daily, /cron/weekly and /cron/archive on mux.
func (c *Cron) Register(mux *http.ServeMux) {
	mux.Handle("/cron/daily", c.job("daily", c.Daily))
	mux.Handle("/cron/weekly", c.job("weekly", c.Weekly))
	mux.Handle("/cron/archive", c.job("archive", c.Archive))
}

// Daily posts today's master and teams leaderboards.
func (c *Cron) Daily(ctx context.Context) (map[string]any, error) {
	return c.post(ctx, period.Today,
		scheduledBoard{leaderboard.ScopeMarkets, "Master Leaderboard"},
		scheduledBoard{leaderboard.ScopeTeams, "Teams Leaderboard"})
}

// Weekly posts this week's master leaderboard.
func (c *Cron) Weekly(ctx context.Context) (map[string]any, error) {
	return c.post(ctx, period.Week, scheduledBoard{leaderboard.ScopeMarkets, "Weekly Master Leaderboard"})
}

// Archive rotates the ledger and announces the archived month.
func (c *Cron) Archive(ctx context.Context) (map[string]any, error) {
	part, err := c.d.ledger.ArchiveAndRotate(ctx)
	if err != nil {
		return nil, err
	}
	c.metrics.Archived()
	if err := c.d.publisher.LedgerArchived(ctx, part); err != nil {
		c.logger.Warn("failed to publish archive event", "error", err)
	}
	if c.channel != "" {
		c.d.reply(ctx, c.channel, fmt.Sprintf(":file_cabinet: Archived %d deal rows for %s.", part.Rows, part.Label))
	}
	return map[string]any{"label": part.Label, "rows": part.Rows}, nil
}

type scheduledBoard struct {
	scope leaderboard.Scope
	title string
}

func (c *Cron) post(ctx context.Context, periodName string, boards ...scheduledBoard) (map[string]any, error) {
	if c.channel == "" {
		return nil, errNoReportChannel
	}
	iv, err := c.d.resolver.Period(periodName)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		text, err := c.d.Render(ctx, leaderboard.Request{Scope: b.scope, Interval: iv}, b.title)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(b.title), err)
		}
		if err := c.d.messenger.PostMessage(ctx, c.channel, text); err != nil {
			return nil, err
		}
	}
	return map[string]any{"period": iv.Label, "posted": len(boards)}, nil
}

var errNoReportChannel = errors.New("SLACK_REPORT_CHANNEL is not configured")

// job wraps a scheduled job with secret checking, metrics, and a JSON reply.
func (c *Cron) job(name string, run func(context.Context) (map[string]any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !c.authorized(r) {
			c.logger.Warn("rejected scheduled request", "job", name, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "unauthorized"})
			return
		}

		result, err := run(r.Context())
		c.metrics.CronRun(name, err)
		switch {
		case errors.Is(err, ledger.ErrAlreadyArchived):
			c.logger.Info("scheduled job skipped", "job", name, "reason", err.Error())
			writeJSON(w, http.StatusConflict, map[string]any{"status": "already_archived"})
		case err != nil:
			c.logger.Error("scheduled job failed", "job", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error"})
		default:
			c.logger.Info("scheduled job complete", "job", name)
			if result == nil {
				result = map[string]any{}
			}
			result["status"] = "ok"
			writeJSON(w, http.StatusOK, result)
		}
	})
}

// authorized compares the presented secret in constant time. An empty
// configured secret rejects everything.
func (c *Cron) authorized(r *http.Request) bool {
	if c.secret == "" {
		return false
	}
	got := r.Header.Get(CronSecretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
