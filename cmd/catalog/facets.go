package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/facet"
)

var (
	facetFlags  queryFlags
	facetSelect []string
	facetOne    []string
)

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Show metadata facets with disjunctive counts over a search",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := facetFlags.request()
		if err != nil {
			return err
		}
		selected, err := parsePairs(facetSelect)
		if err != nil {
			return err
		}

		state := facet.State{}
		for key, values := range selected {
			for _, v := range values {
				state.Toggle(key, v)
			}
		}
		for _, key := range facetOne {
			if err := state.SetMode(key, facet.ModeOne, false); err != nil {
				return fmt.Errorf("--one %s: %w", key, err)
			}
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
		view, err := facet.Compute(res.Results, state)
		if err != nil {
			return err
		}
		if facetFlags.json {
			return printJSON(view)
		}

		fmt.Printf("%d of %d records visible\n", view.Total, len(res.Results))
		for _, s := range view.Facets {
			fmt.Printf("%s (%s)\n", s.Key, s.Mode)
			for _, b := range s.Buckets {
				mark := " "
				if b.Selected {
					mark = "*"
				}
				fmt.Printf("  %s %s %d\n", mark, b.Value, b.Count)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(facetsCmd)
	facetFlags.register(facetsCmd)
	facetsCmd.Flags().StringArrayVar(&facetSelect, "select", nil, "Select facet values key=value[,value] (repeatable)")
	facetsCmd.Flags().StringArrayVar(&facetOne, "one", nil, "Switch a facet key to single-select (repeatable)")
}
