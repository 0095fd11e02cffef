package main

import (
	"fmt"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/display"
	"github.com/spf13/cobra"
)

var (
	recordsUser string
	listLane    string
	listUnread  bool
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List classified messages of a lane, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		lanes := []core.Lane{core.LaneOpportunity, core.LaneOperation}
		if listLane != "" {
			lane := core.Lane(listLane)
			if !lane.Valid() {
				return fmt.Errorf("unknown lane %q (use opportunity or operation)", listLane)
			}
			lanes = []core.Lane{lane}
		}
		page := core.Page{Limit: listLimit, Offset: listOffset, UnreadOnly: listUnread}

		return container.Invoke(func(s core.Store) error {
			byLane := make(map[core.Lane][]*core.ClassifiedMessage, len(lanes))
			for _, lane := range lanes {
				recs, err := s.ListByLane(cmd.Context(), recordsUser, lane, page)
				if err != nil {
					return err
				}
				byLane[lane] = recs
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), byLane)
			}
			now := time.Now()
			for i, lane := range lanes {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				display.Records(cmd.OutOrStdout(), lane, byLane[lane], now)
			}
			return nil
		})
	},
}

var revealCmd = &cobra.Command{
	Use:   "reveal <record-id>",
	Short: "Mark a classified message as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(s core.Store) error {
			if err := s.MarkRevealed(cmd.Context(), recordsUser, args[0]); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "marked %s as read", args[0])
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-lane statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return container.Invoke(func(s core.Store) error {
			stats, err := s.Stats(cmd.Context(), recordsUser)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			display.Stats(cmd.OutOrStdout(), stats)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{listCmd, revealCmd, statsCmd} {
		c.Flags().StringVarP(&recordsUser, "user", "u", "", "User id")
		c.MarkFlagRequired("user")
	}
	listCmd.Flags().StringVar(&listLane, "lane", "", "opportunity or operation (default both)")
	listCmd.Flags().BoolVar(&listUnread, "unread", false, "Only unread messages")
	listCmd.Flags().IntVar(&listLimit, "limit", core.DefaultPageLimit, "Page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Page offset")

	rootCmd.AddCommand(listCmd, revealCmd, statsCmd)
}
