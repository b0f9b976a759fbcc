package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var contextsJSON bool

var contextsCmd = &cobra.Command{
	Use:   "contexts [id]",
	Short: "List registered contexts, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		if len(args) == 1 {
			ctxDef, err := c.Service.GetContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(ctxDef)
		}

		contexts, err := c.Service.ListContexts(cmd.Context())
		if err != nil {
			return err
		}
		if contextsJSON {
			return printJSON(contexts)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTIVE\tREQUIRED\tOPTIONAL\tNAME")
		for _, ctxDef := range contexts {
			fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n", ctxDef.ID, ctxDef.Active,
				strings.Join(ctxDef.RequiredMetadataKeys, ","),
				strings.Join(ctxDef.OptionalMetadataKeys, ","),
				ctxDef.DisplayName)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(contextsCmd)
	contextsCmd.Flags().BoolVar(&contextsJSON, "json", false, "Output in JSON format")
}
