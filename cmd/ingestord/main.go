// Command ingestord runs the ingestion daemon: it wires components A
// through H per a YAML configuration document and serves the ingest,
// health, and metrics HTTP endpoints until signaled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/ingestord/pkg/config"
	"github.com/cuemby/ingestord/pkg/log"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:     "ingestord",
	Short:   "ingestord is the observability ingestion and WAL storage engine",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the ingestord YAML config (defaults built in when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of console output")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the ingestion daemon and its HTTP endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Log.Level != "" {
			log.Init(log.Config{
				Level:      log.Level(cfg.Log.Level),
				JSONOutput: cfg.Log.Format == "json",
				File:       fileConfigFrom(cfg.Log.File),
			})
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		d, err := buildDaemon(ctx, cfg)
		if err != nil {
			return fmt.Errorf("build daemon: %w", err)
		}
		d.start(ctx)
		defer d.stop()

		addr, _ := cmd.Flags().GetString("addr")
		srv := &http.Server{Addr: addr, Handler: d.newMux()}

		errCh := make(chan error, 1)
		go func() {
			log.Info("ingestord listening on " + addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("ingestord shutting down")
		case err := <-errCh:
			return fmt.Errorf("http server error: %w", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8085", "address the ingest/health/metrics HTTP server listens on")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func fileConfigFrom(f *config.LogFileConfig) *log.FileConfig {
	if f == nil || f.Path == "" {
		return nil
	}
	return &log.FileConfig{
		Path:       f.Path,
		MaxSizeMB:  f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAgeDays: f.MaxAgeDays,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
