package main

import (
	"fmt"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/display"
	"github.com/mikey/inbox-triage/internal/scan"
	"github.com/spf13/cobra"
)

var (
	scanUser   string
	scanPreset string
	scanSince  time.Duration
	scanLimit  int

	unscannedUser  string
	unscannedLimit int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan one user's mailbox",
	Long: `Scan fetches the user's recent mail, classifies new messages and stores the verdicts.
Without --preset or --since the scan continues from the last successful scan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := scan.Request{UserID: scanUser, Preset: scanPreset, Limit: scanLimit}
		if scanSince > 0 {
			now := time.Now()
			req.Window = &core.ScanWindow{Since: now.Add(-scanSince), Until: now}
		}

		return container.Invoke(func(scanner *scan.Scanner) error {
			res, err := scanner.Scan(cmd.Context(), req)
			if jsonOutput {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
			} else {
				display.ScanResult(cmd.OutOrStdout(), res, err)
			}
			return err
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Scan every eligible connected user once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(batch *scan.Batch) error {
			outcomes, err := batch.Run(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), outcomes)
			}
			out := cmd.OutOrStdout()
			for _, o := range outcomes {
				if o.Skipped() {
					fmt.Fprintf(out, "%s %s skipped: %s\n", display.Dim.Render("-"), o.UserID, o.SkipReason)
					continue
				}
				if o.Result == nil {
					o.Result = &core.ScanResult{UserID: o.UserID}
				}
				display.ScanResult(out, o.Result, o.Err)
			}
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the batch on the configured schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(scheduler *scan.Scheduler) {
			scheduler.Start(cmd.Context())
			<-cmd.Context().Done()
			scheduler.Stop()
		})
	},
}

var unscannedCmd = &cobra.Command{
	Use:   "unscanned",
	Short: "Count messages the next scan would classify",
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(scanner *scan.Scanner) error {
			backlog, err := scanner.CountUnscanned(cmd.Context(), unscannedUser, unscannedLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"user_id":           backlog.UserID,
					"unscanned":         backlog.Unscanned,
					"checked":           backlog.Checked,
					"truncated":         backlog.Truncated,
					"threshold_reached": backlog.ThresholdReached(),
					"urgent":            backlog.Urgent(),
				})
			}
			level := ""
			switch {
			case backlog.Urgent():
				level = "urgent"
			case backlog.ThresholdReached():
				level = "notify"
			}
			display.Backlog(cmd.OutOrStdout(), backlog.UserID, backlog.Unscanned, backlog.Checked, level)
			return nil
		})
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List scan presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		for _, name := range scan.PresetNames(admin) {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanUser, "user", "u", "", "User id")
	scanCmd.Flags().StringVar(&scanPreset, "preset", "", "Named time range (see 'presets')")
	scanCmd.Flags().DurationVar(&scanSince, "since", 0, "Scan messages newer than this duration, e.g. 48h")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "Maximum messages to consider (0 uses scan.default_limit)")
	scanCmd.MarkFlagRequired("user")
	scanCmd.MarkFlagsMutuallyExclusive("preset", "since")

	unscannedCmd.Flags().StringVarP(&unscannedUser, "user", "u", "", "User id")
	unscannedCmd.Flags().IntVar(&unscannedLimit, "limit", 0, "Maximum candidates to check (0 uses scan.default_limit)")
	unscannedCmd.MarkFlagRequired("user")

	presetsCmd.Flags().Bool("admin", false, "Include admin-only presets")

	rootCmd.AddCommand(scanCmd, batchCmd, serveCmd, unscannedCmd, presetsCmd)
}
