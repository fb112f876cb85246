package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/chatflow"
	"github.com/spf13/cobra"
)

var errInvalid = errors.New("flow is not valid")

var validateCmd = &cobra.Command{
	Use:   "validate <flow.json>...",
	Short: "Check flows for structural problems",
	Long: `Applies the layout rules to each exported flow and reports what keeps it
from being publishable: missing or duplicated Start/SubFlow/CTA nodes,
Questions outside the SubFlow, unreachable Questions, dead ends, loops and
incomplete Condition branches.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		opts := app.ValidatorOptions()
		if strict, _ := cmd.Flags().GetBool("strict"); strict {
			opts = append(opts, chatflow.WithStrictBranching())
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		out := cmd.OutOrStdout()
		failed := false
		for _, path := range args {
			res, err := chatflow.ValidateFile(path, opts...)
			if err != nil {
				return err
			}
			failed = failed || !res.Valid

			if asJSON {
				data, err := json.Marshal(struct {
					File string `json:"file"`
					chatflow.ValidationResult
				}{path, res})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				continue
			}
			if res.Valid {
				fmt.Fprintf(out, "%s: flow is valid! ✅\n", path)
				continue
			}
			fmt.Fprintf(out, "%s: found %d errors:\n", path, len(res.Errors))
			for _, msg := range res.Errors {
				fmt.Fprintf(out, "  - %s\n", msg)
			}
		}
		if failed {
			return errInvalid
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Report non-Condition nodes with several outgoing connections")
	validateCmd.Flags().Bool("json", false, "Print one JSON result per line")
}
