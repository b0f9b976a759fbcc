package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	catalog "github.com/rawneddy/ceremony-field-catalog-sub002"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/httpapi"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		c, err := openCatalog(
			catalog.WithMetrics(reg),
			catalog.WithRegistryWatch(cfg.GetBool("watch")),
		)
		if err != nil {
			return err
		}
		defer c.Close()

		logger := slog.Default()
		srv := &http.Server{
			Addr: cfg.GetString("addr"),
			Handler: httpapi.New(httpapi.Options{
				Service:         c.Service,
				Logger:          logger,
				Gatherer:        c.Gatherer,
				IngestRateLimit: cfg.GetInt("rate-limit"),
				MaxBodyBytes:    cfg.GetInt64("max-body-bytes"),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		if err := c.Watch(gctx); err != nil {
			return err
		}

		g.Go(func() error {
			logger.Info("catalog listening", "addr", srv.Addr, "watch", c.Watcher != nil)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		if c.Watcher != nil {
			<-c.Watcher.Done()
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().Bool("watch", true, "Reload the registry when definition files change")
	serveCmd.Flags().Int("rate-limit", 600, "Observation batches per minute and client IP (0 disables)")
	serveCmd.Flags().Int64("max-body-bytes", 10<<20, "Largest accepted request body")
}
