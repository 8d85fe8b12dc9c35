package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <runbook.yaml>",
		Short: "Parse and compile a runbook into an execution plan without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := buildPlan(args[0])
			if err != nil {
				return err
			}

			summary := struct {
				Runbook   string   `json:"runbook"`
				Artifacts []string `json:"artifacts"`
			}{
				Runbook:   p.Runbook.Name,
				Artifacts: p.DAG.Nodes(),
			}
			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("plan: encoding summary: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
