package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	catalog "github.com/rawneddy/ceremony-field-catalog-sub002"
)

var (
	verbose bool
	cfgFile string

	// cfg merges flags, CATALOG_* environment variables and catalog.yaml.
	cfg = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "A catalog of the fields observed in processed documents",
	Long: `catalog aggregates field observations into one record per field
identity and answers searches over them.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (CATALOG_*)
3. catalog.yaml in the working directory or the catalog root`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if err := cfg.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return readConfig()
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() error {
	cfg.SetEnvPrefix("CATALOG")
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()

	if cfgFile != "" {
		cfg.SetConfigFile(cfgFile)
	} else {
		cfg.SetConfigName("catalog")
		cfg.SetConfigType("yaml")
		cfg.AddConfigPath(".")
		if root, err := catalog.FindRoot("."); err == nil {
			cfg.AddConfigPath(root)
		}
	}

	err := cfg.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		slog.Debug("config loaded", "file", cfg.ConfigFileUsed())
	case errors.As(err, &notFound) && cfgFile == "":
	default:
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&cfgFile, "config", "", "Config file (default catalog.yaml)")
	flags.String("data", ".", "Catalog data directory (or .db file for sqlite)")
	flags.String("adapter", catalog.AdapterFS, "Storage adapter: fs, sqlite or memory")
	flags.String("format", "json", "Record file format of the fs adapter: json or yaml")
	flags.String("registry", "contexts", "Directory holding context definition files")
	flags.String("registry-pattern", "", "Glob selecting definition files (default **/*.{yaml,yml})")
	flags.Bool("read-only", false, "Reject merges and purges")
	flags.Int("default-limit", 0, "Search limit used when a request has none")
	flags.Int("max-limit", 0, "Hard ceiling of any search")
}
