package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/wiki-weaver/internal/config"
	"github.com/alvmarrod/wiki-weaver/internal/metrics"
	"github.com/alvmarrod/wiki-weaver/internal/pipeline"
	"github.com/alvmarrod/wiki-weaver/internal/version"
)

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl from the seed article and export both graphs",
		Long: `Run crawls from the configured seed article and writes the pruned word and
link graphs.

Settings come from the config file (JSON, or YAML for .yaml/.yml), overridden by
WEAVER_* environment variables, which may be loaded from a dotenv file.

Examples:
  crawler run --config weaver.yaml
  crawler run --env-file .env
  WEAVER_SEED_URL=https://en.wikipedia.org/wiki/Drug_use crawler run`,
		Args: cobra.NoArgs,
		RunE: runCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file path (defaults and environment only when empty)")
	cmd.Flags().String("env-file", "", "Load environment variables from this dotenv file")

	return cmd
}

func runCmd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logrus.Warnf("Error loading env file %s: %v", envFile, err)
		}
	}

	logrus.Infof("Wiki Weaver v%s starting...", version.Version)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logrus.Infof("Configuration loaded: seed=%s, depth=%d, articles=%d",
		cfg.SeedURL, cfg.MaxDepth, cfg.MaxArticles)

	p := pipeline.New(cfg, pipeline.WithLogger(logrus.NewEntry(logrus.StandardLogger())))

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, p.Tracker().Handler())
		defer stop()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := handleSignals(cancel, func() {
		if err := emergencySave(p.Tracker(), cfg.MetricsPath); err != nil {
			logrus.Errorf("Emergency metrics save failed: %v", err)
		}
	})
	defer stopSignals()

	summary, err := p.Run(ctx)
	logrus.Info("Final stats: " + p.Tracker().LogProgress())
	if err != nil {
		return err
	}

	entry := logrus.WithFields(logrus.Fields{
		"run_id":  summary.RunID.String(),
		"reason":  summary.Reason,
		"partial": summary.Partial,
	})
	if summary.Partial {
		entry.Warnf("Run finished with %d documents", summary.Documents)
	} else {
		entry.Infof("Run finished with %d documents", summary.Documents)
	}
	return nil
}

// handleSignals cancels the run on the first SIGINT/SIGTERM. A second signal
// runs emergency and exits immediately.
func handleSignals(cancel context.CancelFunc, emergency func()) func() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logrus.Infof("Received signal: %v, finishing with partial results...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigChan:
			logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
			emergency()
			os.Exit(exitRuntimeErr)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// emergencySave writes the current metrics to path; an empty path disables it
func emergencySave(tracker *metrics.Tracker, path string) error {
	if path == "" {
		return nil
	}
	return tracker.WriteToFile(path)
}

// serveMetrics exposes the run metrics on addr until the returned func is called
func serveMetrics(addr string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Metrics server failed: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Warnf("Metrics server shutdown: %v", err)
		}
	}
}
