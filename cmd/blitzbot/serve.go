package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"blitzbot/internal/bridge"
	"blitzbot/internal/bus"
	"blitzbot/internal/deal"
	"blitzbot/internal/metrics"
	"blitzbot/internal/period"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the Slack bot and its HTTP endpoints",
	GroupID: "bot",
	Long: `Run the bot. Events arrive over Socket Mode when SLACK_APP_TOKEN is set and
through the Events API webhook at /slack/events when SLACK_SIGNING_SECRET is set.

HTTP endpoints:
  /healthz, /readyz    liveness and readiness
  /metrics             Prometheus metrics
  /slack/events        Events API webhook
  /slack/commands      slash commands (/deal 2g)
  /cron/daily          post today's master and teams leaderboards
  /cron/weekly         post this week's master leaderboard
  /cron/archive        archive last month's deals and rotate the ledger

The /cron endpoints require CRON_SECRET in the X-Cron-Secret header or the
secret query parameter.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger.Info("starting blitzbot",
		"version", version,
		"commit", commit,
		"listen_addr", cfg.ListenAddr,
		"timezone", cfg.Timezone,
		"socket_mode", cfg.SlackAppToken != "",
		"events_api", cfg.SlackSigningSecret != "")

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, loc, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []slack.Option{slack.OptionDebug(cfg.SlackDebug)}
	if cfg.SlackAppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.SlackAppToken))
	}
	api := slack.New(cfg.SlackBotToken, opts...)
	slackAPI := bridge.NewSlackAPI(api)

	botUserID, err := slackAPI.BotUserID(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var publisher bus.Publisher = bus.Nop{}
	if cfg.NatsURL != "" {
		nc, err := bus.Connect(bus.Config{NatsURL: cfg.NatsURL, NatsToken: cfg.NatsToken}, logger)
		if err != nil {
			// Publishing is best-effort; the bot runs without it.
			logger.Warn("NATS unavailable, ledger events will not be published", "error", err)
		} else {
			publisher = nc
		}
	}
	defer publisher.Close()

	dispatcher := bridge.NewDispatcher(bridge.DispatcherConfig{
		Ledger:    store,
		Resolver:  period.NewResolver(loc, time.Now),
		Parser:    deal.Parser{MultiCount: cfg.MultiCount},
		Rule:      cfg.ChannelRule(),
		GapDays:   cfg.GapDays,
		Messenger: slackAPI,
		Identity:  bridge.NewIdentityCache(slackAPI, logger),
		Dedup:     bridge.NewDedup(cfg.DedupCapacity),
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
		BotUserID: botUserID,
	})

	var bot *bridge.Bot
	if cfg.SlackAppToken != "" {
		bot = bridge.NewBot(bridge.BotConfig{
			API:      api,
			Handler:  dispatcher,
			Commands: dispatcher,
			Logger:   logger,
			Debug:    cfg.SlackDebug,
		})
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, version)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if bot != nil && !bot.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not_ready","reason":"socket_mode_disconnected"}`)
			return
		}
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	var events *bridge.EventsHandler
	if cfg.SlackSigningSecret != "" {
		events = bridge.NewEventsHandler(cfg.SlackSigningSecret, dispatcher, logger)
		mux.Handle("/slack/events", events)
		mux.Handle("/slack/commands", bridge.NewCommandsHandler(cfg.SlackSigningSecret, dispatcher, logger))
		logger.Info("Events API webhook enabled", "path", "/slack/events")
	}

	if cfg.CronSecret != "" {
		bridge.NewCron(bridge.CronConfig{
			Secret:     cfg.CronSecret,
			Channel:    cfg.ReportChannel,
			Dispatcher: dispatcher,
			Metrics:    m,
			Logger:     logger,
		}).Register(mux)
		if cfg.ReportChannel == "" {
			logger.Warn("SLACK_REPORT_CHANNEL not set, scheduled leaderboards will fail")
		}
	} else {
		logger.Warn("CRON_SECRET not set, /cron endpoints disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	if bot != nil {
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Socket Mode bot stopped", "error", err)
			}
		}()
	}

	logger.Info("blitzbot ready", "bot_user", botUserID)

	<-ctx.Done()
	logger.Info("shutting down blitzbot")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if events != nil {
		events.Wait()
	}
	return nil
}
