// cmd/edge-bridge is the replication bridge's entrypoint.
//
// Example:
//
//	./edge-bridge config.yaml --data-dir /var/edge-bridge --health-addr :8090
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"edge-bridge/internal/bridge"
	"edge-bridge/internal/config"
)

var (
	dataDir    string
	healthAddr string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "edge-bridge <config-file>",
		Short: "One-way replication bridge from a remote procurement catalog to a local store",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "/var/lib/edge-bridge", "directory for the local store's WAL and snapshots")
	root.PersistentFlags().StringVar(&healthAddr, "health-addr", ":8090", "listen address for /healthz and /metrics; empty disables the server")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		logger.SetLevel(level)
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		if _, ok := err.(*config.ConfigError); ok {
			fmt.Fprintf(os.Stderr, "edge-bridge: %v\n", err)
			os.Exit(2)
		}
		return err
	}

	b, err := bridge.New(cfg, bridge.Options{
		DataDir:    dataDir,
		HealthAddr: healthAddr,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"resource":    cfg.Resource,
		"health_addr": healthAddr,
		"data_dir":    dataDir,
	}).Info("edge-bridge starting")

	runErr := b.Run(ctx)

	logger.Info("edge-bridge stopped")
	return runErr
}
