package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

var searchFlags queryFlags

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search aggregate field records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := searchFlags.request()
		if err != nil {
			return err
		}
		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Service.Search(cmd.Context(), req)
		if err != nil {
			return err
		}
		if searchFlags.json {
			return printJSON(res)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONTEXT\tFIELD\tMIN\tMAX\tNULL\tEMPTY\tMETADATA")
		for _, r := range res.Results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%v\t%s\n",
				r.ContextID, r.FieldPath, r.MinOccurs, r.MaxOccurs, r.AllowsNull, r.AllowsEmpty, formatMetadata(r))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if res.Truncated {
			fmt.Printf("showing %d of %d matches (limit %d)\n", len(res.Results), res.TotalMatched, res.Limit)
		}
		return nil
	},
}

func formatMetadata(r core.AggregateRecord) string {
	keys := r.MetadataKeys()
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(r.MetadataValues(k), "|"))
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchFlags.register(searchCmd)
}
