package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arelis/hub/signature"
)

var secretCmd = &cobra.Command{
	Use:     "secret",
	Short:   "Print a new random webhook signing secret",
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := signature.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}
