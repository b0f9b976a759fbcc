package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	catalog "github.com/rawneddy/ceremony-field-catalog-sub002"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of catalog",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("catalog version %s\n", strings.TrimSpace(catalog.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
