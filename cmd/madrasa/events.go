package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/groblegark/madrasa/internal/client"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Query the change feed",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		subject, _ := cmd.Flags().GetString("subject")
		since, _ := cmd.Flags().GetDuration("since")
		afterID, _ := cmd.Flags().GetInt64("after-id")
		limit, _ := cmd.Flags().GetInt("limit")

		var sinceMillis int64
		if since > 0 {
			sinceMillis = time.Now().Add(-since).UnixMilli()
		}

		evts, err := apiClient.EventsSince(context.Background(), &client.EventsSinceRequest{
			SinceMillis: sinceMillis,
			AfterSeq:    afterID,
			Owner:       owner,
			Subject:     subject,
			Limit:       limit,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(evts)
		}
		if len(evts) == 0 {
			fmt.Println("no events")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tTYPE\tSUBJECT\tOWNER\tACTOR")
		for _, evt := range evts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				evt.Seq,
				evt.CreatedAt.Format("15:04:05"),
				evt.Kind,
				evt.SubjectID,
				evt.Owner,
				summarizeActor(evt.Actor),
			)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().String("owner", "", "filter by owner")
	eventsCmd.Flags().String("subject", "", "filter by subject ID")
	eventsCmd.Flags().Duration("since", 0, "look back this far (e.g. 1h); default is the epoch")
	eventsCmd.Flags().Int64("after-id", 0, "cursor tiebreaker: only events with a larger ID")
	eventsCmd.Flags().Int("limit", 100, "maximum events to return")
}
