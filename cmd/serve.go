package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/metrics"
	"github.com/Noxie-dev/workwise-sa/internal/report"
	"github.com/Noxie-dev/workwise-sa/internal/scheduler"
	"github.com/Noxie-dev/workwise-sa/internal/session"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sessions on the configured schedule and expose /health and /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		runner := session.New(cfg, logger, session.WithMetrics(metrics.New(reg)))

		sched, err := scheduler.New(cfg.Schedule.Cron, cfg.Schedule.RunOnStart, runner, logger)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newMux(sched.LastReport, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		sched.Start(ctx)

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- eris.Wrap(err, "server listen")
			}
			close(errCh)
		}()

		var serveErr error
		select {
		case <-ctx.Done():
		case serveErr = <-errCh:
		}

		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		if err := sched.Stop(sctx); err != nil {
			logger.Warn("scheduler shutdown", zap.Error(err))
		}
		return serveErr
	},
}

type healthResponse struct {
	Status      string         `json:"status"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
	LastSession *sessionStatus `json:"last_session,omitempty"`
}

type sessionStatus struct {
	SessionID   string    `json:"session_id"`
	ExitCode    int       `json:"exit_code"`
	Interrupted bool      `json:"interrupted"`
	Persisted   int64     `json:"persisted"`
	FinishedAt  time.Time `json:"finished_at"`
}

func newMux(last func() *report.Report, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(last))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func healthHandler(last func() *report.Report) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Service: serviceName, Version: version}
		if rep := last(); rep != nil {
			resp.LastSession = &sessionStatus{
				SessionID:   rep.SessionID,
				ExitCode:    rep.ExitCode(),
				Interrupted: rep.Interrupted,
				Persisted:   rep.Statistics.Persisted,
				FinishedAt:  rep.EndTime,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
