package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/groblegark/madrasa/internal/client"
	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/ui"
	"github.com/spf13/cobra"
)

var itemCmd = &cobra.Command{
	Use:     "item <command>",
	Short:   "Manage content items",
	GroupID: "items",
}

var itemCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new draft item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		priceCents, _ := cmd.Flags().GetInt("price-cents")
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			owner = actor
		}

		item, err := apiClient.CreateItem(context.Background(), &client.CreateItemRequest{
			Title:       args[0],
			Description: description,
			PriceCents:  priceCents,
			Owner:       owner,
			CreatedBy:   actor,
		})
		if err != nil {
			return err
		}
		return printItem(item)
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetStringSlice("status")
		owner, _ := cmd.Flags().GetString("owner")
		search, _ := cmd.Flags().GetString("search")
		includeDeleted, _ := cmd.Flags().GetBool("deleted")
		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := apiClient.ListItems(context.Background(), &client.ListItemsRequest{
			Status:         status,
			Owner:          owner,
			Search:         search,
			IncludeDeleted: includeDeleted,
			Limit:          limit,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tOWNER\tPRICE")
		for _, item := range resp.Items {
			status := ui.Colorize(ui.StatusColor(item.Status), item.Status.String())
			if item.Deleted() {
				status = ui.Colorize(ui.Red, "deleted")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				item.ID, status, item.Title, item.Owner, formatPrice(item.PriceCents))
		}
		w.Flush()
		fmt.Printf("%d of %d items\n", len(resp.Items), resp.Total)
		return nil
	},
}

var itemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := apiClient.GetItem(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printItem(item)
	},
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update item fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.UpdateItemRequest{Actor: actor}
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			req.Title = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			req.Description = &v
		}
		if cmd.Flags().Changed("price-cents") {
			v, _ := cmd.Flags().GetInt("price-cents")
			req.PriceCents = &v
		}

		item, err := apiClient.UpdateItem(context.Background(), args[0], req)
		if err != nil {
			return err
		}
		return printItem(item)
	},
}

var itemPublishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Publish a draft or archived item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := apiClient.PublishItem(context.Background(), args[0], actor)
		if err != nil {
			return err
		}
		return printItem(item)
	},
}

var itemArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a published item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := apiClient.ArchiveItem(context.Background(), args[0], actor)
		if err != nil {
			return err
		}
		return printItem(item)
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft-delete an item (restorable)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteItem(context.Background(), args[0], actor); err != nil {
			return err
		}
		fmt.Printf("Deleted %s (restore with: madrasa item restore %s)\n", args[0], args[0])
		return nil
	},
}

var itemRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a soft-deleted item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := apiClient.RestoreItem(context.Background(), args[0], actor)
		if err != nil {
			return err
		}
		return printItem(item)
	},
}

var itemPurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Permanently delete an item (events survive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("purge is permanent; re-run with --force to confirm")
		}
		if err := apiClient.HardDeleteItem(context.Background(), args[0], actor); err != nil {
			return err
		}
		fmt.Printf("Purged %s\n", args[0])
		return nil
	},
}

var itemHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the event history of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := apiClient.ItemEvents(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(evts)
		}
		for _, evt := range evts {
			fmt.Printf("%s  %-15s  %s\n",
				evt.CreatedAt.Format("2006-01-02 15:04:05"), evt.Kind, summarizeActor(evt.Actor))
		}
		return nil
	},
}

func summarizeActor(a string) string {
	if a == "" {
		return ""
	}
	return "by " + a
}

func formatPrice(cents int) string {
	if cents == 0 {
		return "free"
	}
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func printItem(item *model.Item) error {
	if jsonOutput {
		return printJSON(item)
	}
	status := ui.Colorize(ui.StatusColor(item.Status), item.Status.String())
	if item.Deleted() {
		status += " " + ui.Colorize(ui.Red, "(deleted)")
	}
	fmt.Printf("%s  %s\n", ui.Colorize(ui.Bold, item.ID), status)
	fmt.Printf("  Title: %s\n", item.Title)
	if item.Description != "" {
		fmt.Printf("  Description: %s\n", item.Description)
	}
	fmt.Printf("  Owner: %s  Price: %s\n", item.Owner, formatPrice(item.PriceCents))
	fmt.Printf("  Updated: %s\n", item.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func init() {
	itemCreateCmd.Flags().String("description", "", "item description")
	itemCreateCmd.Flags().Int("price-cents", 0, "price in cents (0 = free)")
	itemCreateCmd.Flags().String("owner", "", "owning user (defaults to --actor)")

	itemListCmd.Flags().StringSlice("status", nil, "filter by status (draft, published, archived)")
	itemListCmd.Flags().String("owner", "", "filter by owner")
	itemListCmd.Flags().String("search", "", "search title and description")
	itemListCmd.Flags().Bool("deleted", false, "include soft-deleted items")
	itemListCmd.Flags().Int("limit", 50, "maximum items to return")

	itemUpdateCmd.Flags().String("title", "", "new title")
	itemUpdateCmd.Flags().String("description", "", "new description")
	itemUpdateCmd.Flags().Int("price-cents", 0, "new price in cents")

	itemPurgeCmd.Flags().Bool("force", false, "confirm permanent deletion")

	itemCmd.AddCommand(
		itemCreateCmd,
		itemListCmd,
		itemShowCmd,
		itemUpdateCmd,
		itemPublishCmd,
		itemArchiveCmd,
		itemDeleteCmd,
		itemRestoreCmd,
		itemPurgeCmd,
		itemHistoryCmd,
	)
}
