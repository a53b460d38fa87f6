package main

import (
	"context"
	"fmt"

	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/ui"
	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:     "progress <command>",
	Short:   "Manage learning progress",
	GroupID: "learning",
}

var progressSetCmd = &cobra.Command{
	Use:   "set <user> <track> <completed>",
	Short: "Set the absolute completed count for a track",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var completed int
		if _, err := fmt.Sscanf(args[2], "%d", &completed); err != nil {
			return fmt.Errorf("completed must be a number: %w", err)
		}
		total, _ := cmd.Flags().GetInt("total")

		p, err := apiClient.SetProgress(context.Background(), args[0], args[1], completed, total)
		if err != nil {
			return err
		}
		return printProgress(p)
	},
}

var progressShowCmd = &cobra.Command{
	Use:   "show <user> [track]",
	Short: "Show progress for a user, or one track",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			p, err := apiClient.GetProgress(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			return printProgress(p)
		}

		records, err := apiClient.ListProgress(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(records)
		}
		for _, p := range records {
			fmt.Printf("%-20s %s\n", p.TrackID, progressBar(p))
		}
		return nil
	},
}

func printProgress(p *model.Progress) error {
	if jsonOutput {
		return printJSON(p)
	}
	fmt.Printf("%s / %s: %s\n", p.UserID, p.TrackID, progressBar(p))
	return nil
}

func progressBar(p *model.Progress) string {
	if p.Total <= 0 {
		return fmt.Sprintf("%d completed", p.Completed)
	}
	s := fmt.Sprintf("%d/%d", p.Completed, p.Total)
	if p.Completed >= p.Total {
		return ui.Colorize(ui.Green, s+" ✓")
	}
	return s
}

func init() {
	progressSetCmd.Flags().Int("total", 0, "total units in the track")
	progressCmd.AddCommand(progressSetCmd, progressShowCmd)
}
