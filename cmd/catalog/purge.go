package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge <context-id>",
	Short: "Delete every aggregate record of a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return fmt.Errorf("refusing to purge %q without --yes", args[0])
		}
		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Service.PurgeContext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%d records deleted\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "Confirm the deletion")
}
