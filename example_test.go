package catalog_test

import (
	"context"
	"fmt"
	"log"
	"os"

	catalog "github.com/rawneddy/ceremony-field-catalog-sub002"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/facet"
)

// Example_basic demonstrates how to open a catalog, merge a batch and search it.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "catalog-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	c, err := catalog.New(tmpDir, catalog.WithContexts(core.Context{
		ID:                   "deposits",
		RequiredMetadataKeys: []string{"productCode", "action"},
		OptionalMetadataKeys: []string{"channel"},
		Active:               true,
	}))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	md := map[string]string{"productCode": "DDA", "action": "Fulfillment"}

	// 1. Merge a batch
	_, err = c.Service.Merge(ctx, "deposits", []core.Observation{
		{FieldPath: "/Ceremony/Account/Balance", OccurrenceCount: 1, Metadata: md},
		{FieldPath: "/Ceremony/Account/Tax", OccurrenceCount: 2, Metadata: md},
	})
	if err != nil {
		log.Fatal(err)
	}

	// 2. A later batch of the same variant without Tax makes it optional
	_, err = c.Service.Merge(ctx, "deposits", []core.Observation{
		{FieldPath: "/Ceremony/Account/Balance", OccurrenceCount: 1, Metadata: md},
	})
	if err != nil {
		log.Fatal(err)
	}

	// 3. Search
	res, err := c.Service.Search(ctx, core.SearchRequest{ContextID: "deposits"})
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range res.Results {
		fmt.Printf("%s min=%d max=%d\n", r.FieldPath, r.MinOccurs, r.MaxOccurs)
	}

	// Output:
	// /Ceremony/Account/Balance min=1 max=1
	// /Ceremony/Account/Tax min=0 max=2
}

// Example_facets demonstrates disjunctive facet counts over search results.
func Example_facets() {
	c, err := catalog.New("", catalog.WithAdapter(catalog.AdapterMemory), catalog.WithContexts(core.Context{
		ID:                   "deposits",
		RequiredMetadataKeys: []string{"productCode"},
		Active:               true,
	}))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for _, product := range []string{"DDA", "DDA", "SAV"} {
		_, err := c.Service.Merge(ctx, "deposits", []core.Observation{{
			FieldPath:       "/Ceremony/" + product,
			OccurrenceCount: 1,
			Metadata:        map[string]string{"productCode": product},
		}})
		if err != nil {
			log.Fatal(err)
		}
	}

	res, err := c.Service.Search(ctx, core.SearchRequest{})
	if err != nil {
		log.Fatal(err)
	}
	view, err := facet.Compute(res.Results, facet.State{"productcode": {Selected: []string{"sav"}}})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("visible:", view.Total)
	for _, b := range view.Facets[0].Buckets {
		fmt.Printf("%s=%d selected=%v\n", b.Value, b.Count, b.Selected)
	}

	// Output:
	// visible: 1
	// dda=1 selected=false
	// sav=1 selected=true
}
