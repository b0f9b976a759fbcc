package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

const defaultBatchPattern = "**/*.{json,yaml,yml}"

var (
	ingestContext string
	ingestPattern string
)

// batchFile is one observation batch as written by a document processor.
type batchFile struct {
	ContextID    string             `json:"contextId" yaml:"contextId"`
	Observations []core.Observation `json:"observations" yaml:"observations"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Merge observation batch files into the catalog",
	Long: `Each file holds one batch: {contextId, observations}. Directories are
searched with --pattern. Every file is merged on its own; a rejected batch
does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandBatchFiles(args, ingestPattern)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no batch files matched %q", ingestPattern)
		}

		c, err := openCatalog()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx := cmd.Context()
		failed := 0
		for _, file := range files {
			if err := ingestFile(ctx, c.Service, file); err != nil {
				failed++
				slog.Error("batch rejected", "file", file, "error", err)
				continue
			}
		}
		fmt.Printf("%d batches merged, %d rejected\n", len(files)-failed, failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d batches rejected", failed, len(files))
		}
		return nil
	},
}

func ingestFile(ctx context.Context, svc *core.Service, file string) error {
	batch, err := readBatch(file)
	if err != nil {
		return err
	}
	contextID := batch.ContextID
	if ingestContext != "" {
		contextID = ingestContext
	}
	if contextID == "" {
		return fmt.Errorf("no contextId in batch and no --context given")
	}

	c, err := svc.GetContext(ctx, contextID)
	if err != nil {
		return err
	}
	for i, o := range batch.Observations {
		if keys := c.UnknownKeys(o.Metadata); len(keys) > 0 {
			return fmt.Errorf("observation %d: unknown metadata keys: %s", i, strings.Join(keys, ", "))
		}
	}

	res, err := svc.Merge(ctx, contextID, batch.Observations)
	if err != nil {
		return err
	}
	slog.Info("batch merged", "file", file, "context", res.ContextID,
		"created", res.Created, "updated", res.Updated, "cleaned", res.Cleaned)
	return nil
}

func readBatch(file string) (batchFile, error) {
	var batch batchFile
	data, err := os.ReadFile(file)
	if err != nil {
		return batch, err
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &batch)
	default:
		err = json.Unmarshal(data, &batch)
	}
	if err != nil {
		return batch, fmt.Errorf("decoding %s: %w", file, err)
	}
	return batch, nil
}

// expandBatchFiles keeps plain files as given and globs directories.
func expandBatchFiles(args []string, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(arg), pattern)
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, m := range matches {
			files = append(files, filepath.Join(arg, filepath.FromSlash(m)))
		}
	}
	return files, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestContext, "context", "", "Context id, overriding the one in each file")
	ingestCmd.Flags().StringVar(&ingestPattern, "pattern", defaultBatchPattern, "Glob selecting batch files inside directories")
}
