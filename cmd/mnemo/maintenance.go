package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newConsolidateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation pass and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.hub.RunConsolidationPass(cmd.Context())
			if err != nil {
				return fmt.Errorf("consolidation pass: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
}

func newEvolveCommand(opts *globalOptions) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run one evolution pass, or roll back the last committed one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if rollback {
				st, err := a.hub.RollbackEvolution(cmd.Context())
				if err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), st)
			}
			result, err := a.hub.RunEvolutionPass(cmd.Context())
			if err != nil {
				return fmt.Errorf("evolution pass: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "restore the previous ranking parameters")
	return cmd
}

func newStrengthCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "strength <memory-id>",
		Short: "Print the current decayed strength of a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			strength, err := a.hub.ComputeStrength(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", strength)
			return nil
		},
	}
}
