package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RenatoCabral2022/facestream/internal/transport"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the animation service is reachable and serving",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Check(cmd.Context()); err != nil {
			return fmt.Errorf("%s: %s: %w", client.Target(), transport.DiagnoseHealth(err), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: serving\n", client.Target())
		return nil
	},
}
