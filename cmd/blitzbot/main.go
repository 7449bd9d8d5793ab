// Command blitzbot is the deal-ledger Slack bot and its operator CLI.
//
// serve runs the bot: it logs deals announced in market channels, answers
// leaderboard and !remove commands, and exposes the scheduled endpoints that
// post daily/weekly leaderboards and rotate the ledger each month. The other
// subcommands work directly against LEDGER_DSN.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"blitzbot/internal/config"
	"blitzbot/internal/ledger"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "blitzbot <command>",
	Short: "Slack deal ledger and leaderboard bot",
	Long: `blitzbot logs deals announced in Slack market channels to a monthly-partitioned
ledger and answers leaderboard queries over named periods and date ranges.

Configuration comes from environment variables (SLACK_BOT_TOKEN, LEDGER_DSN,
TIMEZONE, ...). See "blitzbot serve --help".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Parse()
		logger = setupLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "bot", Title: "Bot:"},
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
	)

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(deletionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// openLedger opens LEDGER_DSN in the configured time zone.
func openLedger() (*ledger.Store, *time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.Open(ledger.Config{
		DSN:      cfg.LedgerDSN,
		Location: loc,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, loc, nil
}
