package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"blitzbot/internal/leaderboard"
	"blitzbot/internal/period"
)

var (
	leaderboardScope   string
	leaderboardChannel string
)

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard [period | start to end]",
	Short:   "Print a leaderboard from the ledger",
	GroupID: "ledger",
	Long: `Print a leaderboard for a named period or a date range.

Periods: today, yesterday, week, last week, month, last month.
Ranges: "3/1 to 3/15", "march 1 to march 15", "3/1/2024 to 3/15/2024".
No argument means today.`,
	Example: `  blitzbot leaderboard week
  blitzbot leaderboard --scope teams last month
  blitzbot leaderboard --scope channel --channel blitz-socal-deals 3/1 to 3/15`,
	RunE: runLeaderboard,
}

func init() {
	leaderboardCmd.Flags().StringVar(&leaderboardScope, "scope", "master", "ranking scope: master, teams or channel")
	leaderboardCmd.Flags().StringVar(&leaderboardChannel, "channel", "", "channel name for --scope channel")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	scope, err := parseScope(leaderboardScope)
	if err != nil {
		return err
	}
	if scope == leaderboard.ScopeChannel && leaderboardChannel == "" {
		return fmt.Errorf("--channel is required with --scope channel")
	}

	store, loc, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	iv, err := period.NewResolver(loc, time.Now).Resolve(strings.Join(args, " "))
	if err != nil {
		return err
	}

	board, err := leaderboard.New(store, cfg.GapDays).Build(cmd.Context(), leaderboard.Request{
		Scope:    scope,
		Channel:  strings.TrimPrefix(leaderboardChannel, "#"),
		Interval: iv,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(board)
	}
	if len(board.Entries) == 0 {
		fmt.Printf("No deals logged for %s.\n", board.Label)
		return nil
	}
	fmt.Printf("%s\n%s\n", board.Label, board.Render())
	return nil
}

func parseScope(s string) (leaderboard.Scope, error) {
	switch strings.ToLower(s) {
	case "master", "markets":
		return leaderboard.ScopeMarkets, nil
	case "teams":
		return leaderboard.ScopeTeams, nil
	case "channel":
		return leaderboard.ScopeChannel, nil
	}
	return 0, fmt.Errorf("unknown scope %q (want master, teams or channel)", s)
}
