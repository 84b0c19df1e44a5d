package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // pprof endpoints on the metrics listener
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wxpppp/garage/pkg/api"
	"github.com/wxpppp/garage/pkg/block"
	"github.com/wxpppp/garage/pkg/cluster"
	"github.com/wxpppp/garage/pkg/config"
	"github.com/wxpppp/garage/pkg/gc"
	"github.com/wxpppp/garage/pkg/log"
	"github.com/wxpppp/garage/pkg/metrics"
	"github.com/wxpppp/garage/pkg/object"
	"github.com/wxpppp/garage/pkg/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the garage daemon",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file")
	serverCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serverCmd.Flags().String("listen", "", "S3 API listen address (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := log.WithComponent("server")

	metaStore, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer metaStore.Close()

	blockStore, err := block.NewLocalStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer blockStore.Close()

	// Block refcounts follow the block-ref table through the edge
	// detector hook.
	metaStore.OnBlockRefUpdated = block.RefHook(blockStore, log.WithComponent("block"))

	layout := cluster.SingleNode()
	core := object.New(metaStore, blockStore, func() *cluster.Layout { return layout }, object.Config{
		BlockSize:       cfg.BlockSize,
		InlineThreshold: cfg.InlineThreshold,
	})

	sweeper := gc.NewSweeper(metaStore, blockStore, cfg.GCInterval())
	sweeper.Start()
	defer sweeper.Stop()

	// Metrics and pprof listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
			logger.Error().Err(err).Msg("Metrics listener failed")
		}
	}()

	apiServer := api.NewServer(cfg.Listen, core, metaStore, cfg.DefaultQuotas)
	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return apiServer.Stop(shutdownCtx)
}
