package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wmclean/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var clear bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent job outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "History is disabled (history.enabled = false)")
				return nil
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if clear {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d history records\n", removed)
				return nil
			}

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				items := make([]historyJSON, 0, len(records))
				for _, rec := range records {
					items = append(items, historyRecordJSON(rec))
				}
				return writeJSON(cmd, items)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}

			tbl := newResultTable(
				leftColumn("Finished"),
				leftColumn("Video").cappedAt(40),
				leftColumn("Method"),
				leftColumn("Status"),
				rightColumn("Size"),
				rightColumn("Took"),
			)
			for _, rec := range records {
				size := "-"
				if rec.Status == history.StatusSucceeded {
					size = humanize.IBytes(uint64(rec.Bytes))
				}
				status := string(rec.Status)
				if rec.ErrorCategory != "" && rec.Status == history.StatusFailed {
					status += " (" + rec.ErrorCategory + ")"
				}
				tbl.addRow(
					humanize.Time(rec.FinishedAt),
					filepath.Base(rec.Input),
					rec.Method,
					status,
					size,
					rec.Duration().Round(time.Second).String(),
				)
			}
			fmt.Fprintln(out, tbl)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show (0 for all)")
	cmd.Flags().BoolVar(&clear, "clear", false, "Delete all history records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
