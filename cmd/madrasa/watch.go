package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/groblegark/madrasa/internal/client"
	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/syncagent"
	"github.com/groblegark/madrasa/internal/ui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch <owner>",
	Short:   "Watch an owner's items live over the push stream",
	GroupID: "sync",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := args[0]
		pollOnly, _ := cmd.Flags().GetBool("poll")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		agent := syncagent.New(apiClient, owner, syncagent.Options{
			Fetch: func(ctx context.Context, subject string) (any, error) {
				item, err := apiClient.GetItem(ctx, subject)
				if err != nil {
					return nil, err
				}
				return string(item.Status), nil
			},
			OnChange: func(subject string, value any, state syncagent.State) {
				printWatchLine(subject, value, state)
			},
			PollInterval: interval,
		})

		// Seed from an authoritative listing before streaming.
		resp, err := apiClient.ListItems(ctx, &client.ListItemsRequest{Owner: owner})
		if err != nil {
			return fmt.Errorf("initial listing: %w", err)
		}
		for _, item := range resp.Items {
			agent.Track(item.ID, string(item.Status))
			printWatchLine(item.ID, string(item.Status), syncagent.StateIdle)
		}
		fmt.Printf("watching %d items for %s (ctrl-c to stop)\n", len(resp.Items), owner)

		if pollOnly {
			agent.RunPolling(ctx)
		} else {
			agent.Run(ctx)
		}
		return nil
	},
}

func printWatchLine(subject string, value any, state syncagent.State) {
	status := fmt.Sprintf("%v", value)
	colored := status
	if s := model.ItemStatus(status); s.IsValid() {
		colored = ui.Colorize(ui.StatusColor(s), status)
	}
	fmt.Printf("%s  %-24s %-12s %s\n",
		time.Now().Format("15:04:05"), subject, colored, state)
}

func init() {
	watchCmd.Flags().Bool("poll", false, "poll instead of holding a push stream")
	watchCmd.Flags().Duration("interval", 0, "polling interval (default 15s)")
}
