package main

import (
	"fmt"
	"os"

	"github.com/groblegark/madrasa/internal/client"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	authToken  string
	jsonOutput bool
	actor      string

	apiClient client.Client
)

func defaultHTTPURL() string {
	if s := os.Getenv("MADRASA_HTTP_URL"); s != "" {
		return s
	}
	if u, _ := activeRemote(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("MADRASA_AUTH_TOKEN"); s != "" {
		return s
	}
	_, token := activeRemote()
	return token
}

func defaultActor() string {
	if s := os.Getenv("MADRASA_ACTOR"); s != "" {
		return s
	}
	return os.Getenv("USER")
}

var rootCmd = &cobra.Command{
	Use:   "madrasa <command>",
	Short: "CLI client and server for the madrasa service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			apiClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for authenticated servers")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name recorded on mutations")

	rootCmd.AddGroup(
		&cobra.Group{ID: "items", Title: "Content items:"},
		&cobra.Group{ID: "learning", Title: "Learning progress:"},
		&cobra.Group{ID: "sync", Title: "Change feed:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		itemCmd,
		progressCmd,
		eventsCmd,
		watchCmd,
		remoteCmd,
		serveCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
