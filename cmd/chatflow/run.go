package main

import (
	"github.com/aretw0/chatflow/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flow.json]",
	Short: "Simulate a conversation over a flow",
	Long: `Starts the flow at its Start node and walks it in the terminal. Questions
wait for an answer, Conditions branch on the run variables and the simulation
ends at the CTA. With --session the run is saved after every step and resumed
on the next invocation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, debug, err := loadApp(cmd)
		if err != nil {
			return err
		}
		opts := cli.SimulateOptions{Debug: debug}
		if len(args) > 0 {
			opts.FlowPath = args[0]
		}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Context, _ = cmd.Flags().GetString("context")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Stdout = cmd.OutOrStdout()
		return cli.Simulate(app, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Persist and resume the run under this session ID")
	runCmd.Flags().Bool("fresh", false, "Discard the stored session before running")
	runCmd.Flags().String("context", "", "JSON object merged into the run variables")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
}
