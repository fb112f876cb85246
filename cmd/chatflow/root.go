package main

import (
	"fmt"
	"os"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Chatflow validates, simulates and serves chatbot flows",
	Long: `Chatflow works on flows exported by the visual chatbot editor: it checks
their structure, simulates conversations in the terminal and exposes editing
sessions over HTTP and MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./chatflow.yaml when present)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
}

// loadApp reads the persistent flags and the configuration.
func loadApp(cmd *cobra.Command) (*cli.App, bool, error) {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	app, err := cli.NewApp(configPath, debug, os.Stderr)
	return app, debug, err
}
