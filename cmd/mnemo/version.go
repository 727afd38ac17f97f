package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goclaw/mnemo/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
				return nil
			}
			out, err := yaml.Marshal(version.Get())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print full build information")
	return cmd
}
