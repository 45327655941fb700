// Command hubd runs the webhook hub: the dispatcher loop, the admin API and
// the inbound receiver, backed by one of the supported stores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "hubd <command>",
	Short:         "Webhook event hub server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("HUB_CONFIG"), "path to a TOML config file")

	rootCmd.AddGroup(&cobra.Group{ID: "server", Title: "Server:"})
	rootCmd.AddGroup(&cobra.Group{ID: "tools", Title: "Tools:"})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(secretCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
