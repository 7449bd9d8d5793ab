package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"blitzbot/internal/bus"
	"blitzbot/internal/leaderboard"
	"blitzbot/internal/ledger"
)

var archiveCmd = &cobra.Command{
	Use:     "archive",
	Short:   "Archive last month's deals and rotate the ledger",
	GroupID: "ledger",
	Long: `Move every deal logged before the start of the current month into its monthly
archive table and record the partition in the catalog. A month archives once;
running it again for the same month fails.

This is the same job as the /cron/archive endpoint.`,
	Args: cobra.NoArgs,
	RunE: runArchive,
}

var partitionsCmd = &cobra.Command{
	Use:     "partitions",
	Short:   "List archived ledger partitions",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE:    runPartitions,
}

var deletionsCmd = &cobra.Command{
	Use:     "deletions",
	Short:   "List deals removed with !remove",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE:    runDeletions,
}

func runArchive(cmd *cobra.Command, args []string) error {
	store, _, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	part, err := store.ArchiveAndRotate(cmd.Context())
	if errors.Is(err, ledger.ErrAlreadyArchived) {
		return fmt.Errorf("nothing to do: %w", err)
	}
	if err != nil {
		return err
	}

	if cfg.NatsURL != "" {
		pub, err := bus.Connect(bus.Config{NatsURL: cfg.NatsURL, NatsToken: cfg.NatsToken}, logger)
		if err != nil {
			logger.Warn("NATS unavailable, ledger.archived not published", "error", err)
		} else {
			if err := pub.LedgerArchived(cmd.Context(), part); err != nil {
				logger.Warn("failed to publish ledger.archived", "error", err)
			}
			pub.Close()
		}
	}

	if jsonOutput {
		return printJSON(part)
	}
	fmt.Printf("Archived %d deal rows for %s into %s\n", part.Rows, part.Label, part.Storage)
	return nil
}

func runPartitions(cmd *cobra.Command, args []string) error {
	store, _, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	parts, err := store.Partitions(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(parts)
	}
	if len(parts) == 0 {
		fmt.Println("No archived partitions.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tSTORAGE\tROWS\tARCHIVED")
	for _, p := range parts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Label, p.Storage, p.Rows, p.ArchivedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runDeletions(cmd *cobra.Command, args []string) error {
	store, loc, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	dels, err := store.Deletions(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(dels)
	}
	if len(dels) == 0 {
		fmt.Println("No deletions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DELETED\tUSER\tCHANNEL\tSIZE\tLOGGED")
	for _, d := range dels {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s GB\t%s\n",
			d.DeletedAt.In(loc).Format("2006-01-02 15:04"),
			d.UserName,
			d.ChannelName,
			leaderboard.FormatGB(d.PackageSizeGB),
			d.Timestamp.In(loc).Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
