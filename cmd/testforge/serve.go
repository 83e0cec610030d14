package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Jojodayolo/testforge/internal/api"
	"github.com/Jojodayolo/testforge/internal/metrics"
	"github.com/Jojodayolo/testforge/internal/runner"
	"github.com/Jojodayolo/testforge/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job worker and the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	// Jobs left RUNNING by a previous process go back to the queue.
	if n, err := s.ResetStaleRunning(ctx); err != nil {
		slog.Warn("reset stale running jobs", "error", err)
	} else if n > 0 {
		slog.Info("reset stale RUNNING jobs to QUEUED", "count", n)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	r, err := runner.New(cfg, runner.WithStore(s), runner.WithMetrics(m))
	if err != nil {
		return err
	}
	if cfg.UseStubs() {
		slog.Info("using stub generation backend")
	}

	w := worker.New(s, r, cfg.WorkerInterval)
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	srv := api.New(s,
		api.WithIdentityResetter(r.Manager()),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		api.WithCORSOrigin(cfg.CORSOrigin),
	)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownServer(httpServer, 10*time.Second)
	}()

	fmt.Printf("testforge server listening on http://localhost:%s\n", cfg.Port)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		return fmt.Errorf("server error: %w", err)
	}
	<-done
	return nil
}

// shutdownServer stops srv, waiting at most timeout for open requests.
func shutdownServer(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown", "error", err)
		return err
	}
	return nil
}
