package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <runbook.yaml> <run-id>",
		Short: "Resume a previously interrupted run, skipping completed artifacts",
		Args:  cobra.ExactArgs(2),
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

			res, err := e.Resume(context.Background(), args[1])
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
}
