package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emersion/go-mailauth/sasl"
)

func mechanismsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mechanisms",
		Short: "List supported SASL mechanisms, strongest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range sasl.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
