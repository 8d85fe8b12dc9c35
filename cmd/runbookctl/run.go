package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "run <runbook.yaml>",
		Short: "Compile and execute a runbook from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := stateDirFlag(cmd)
			if err != nil {
				return err
			}
			p, reg, err := buildPlan(args[0])
			if err != nil {
				return err
			}
			e, err := buildExecutor(p, reg, baseDir)
			if err != nil {
				return err
			}

			if runID == "" {
				runID = uuid.New().String()
			}
			res, err := e.Run(context.Background(), runID)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: a freshly generated UUID)")
	return cmd
}

func printResult(cmd *cobra.Command, res any) error {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("run: encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
