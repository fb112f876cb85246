package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [flow.json]",
	Short: "Export the flow as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of a flow file or of a stored session.
For a session, the nodes visited by its run and the current node are
highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		var (
			g       *domain.Graph
			overlay *graph.GraphOverlay
		)
		switch {
		case sessionID != "":
			app, _, err := loadApp(cmd)
			if err != nil {
				return err
			}
			storage, err := app.OpenStorage()
			if err != nil {
				return err
			}
			defer storage.Close()

			s, err := storage.Store.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("error loading session '%s': %w", sessionID, err)
			}
			g = s.Graph
			overlay = graph.OverlayFrom(s.Execution)
		case len(args) == 1:
			f, err := chatflow.Load(args[0])
			if err != nil {
				return err
			}
			g = f.Graph()
		default:
			return errors.New("a flow file or --session is required")
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Render a stored session with its run overlay")
}
