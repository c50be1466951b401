package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sonirico/ws2mongo"
)

var version = "0.1.0"

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configFile string
		subscribe  []string
	)

	v := newViper()

	root := &cobra.Command{
		Use:   "ws2mongo",
		Short: "Stream websocket messages into MongoDB",
		Long: `ws2mongo keeps a subscription to a websocket endpoint open, reconnecting forever,
and stores every JSON object (or every object of a JSON array) it receives as a MongoDB document.

Configuration is read from the environment (WEBSOCKET_URL, MONGODB_URI, DATABASE_NAME,
COLLECTION_NAME, ...) and optionally from a YAML or JSON file.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML or JSON config file")
	root.PersistentFlags().StringArrayVar(&subscribe, "subscribe", nil,
		"Text frame sent after every (re)connection, in order. Repeatable; overrides INITIAL_MESSAGES")

	load := func() (ws2mongo.Config, error) {
		cfg, err := loadConfig(v, configFile)
		if err != nil {
			return cfg, err
		}
		if len(subscribe) > 0 {
			cfg.InitialMessages = subscribe
		}
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ws2mongo v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as JSON, secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			bts, err := cfg.JSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bts))
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Ingest websocket messages into MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print websocket messages as indented JSON without storing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return tail(cfg, cmd)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg ws2mongo.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, err := ws2mongo.NewLoggerFromConfig(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := ws2mongo.NewZapLogger(zl)

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(zl, cfg.Metrics.Addr)
		defer func() { _ = srv.Close() }()
	}

	sink, err := ws2mongo.NewMongoSink(ctx, log, cfg.Store, cfg.QueueCapacity)
	if err != nil {
		return err
	}

	manager, err := ws2mongo.NewManagerFromConfig(log, cfg)
	if err != nil {
		return err
	}

	_ = manager.Run(ctx, sink)

	zl.Info("shutting down, draining queue")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sink.Shutdown(shutdownCtx)
}

func tail(cfg ws2mongo.Config, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, err := ws2mongo.NewLoggerFromConfig(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	manager, err := ws2mongo.NewManagerFromConfig(ws2mongo.NewZapLogger(zl), cfg)
	if err != nil {
		return err
	}

	_ = manager.Run(ctx, ws2mongo.PrettyPrintHandler(cmd.OutOrStdout()))
	return nil
}

func serveMetrics(zl *zap.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Error("metrics server failed", zap.Error(err))
		}
	}()

	zl.Info("serving metrics", zap.String("addr", addr))
	return srv
}
