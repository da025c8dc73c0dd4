package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/metrics"
	"github.com/hed1ad/secureflow/pkg/server"
	"github.com/hed1ad/secureflow/pkg/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		pipeline pipelineFlags
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := pipeline.apply(cmd, &a.cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				a.cfg.SecureFlow.Server.Listen = listen
			}
			return serve(cmd.Context(), a)
		},
	}

	pipeline.register(cmd)
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")

	return cmd
}

func serve(ctx context.Context, a *app) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srvCfg := a.cfg.SecureFlow.Server
	sessions := session.NewManager(a.sessionOptions(metrics.New(reg)),
		session.WithIdleTimeout(srvCfg.SessionIdleTimeout),
		session.WithMaxSessions(srvCfg.MaxSessions),
	)
	defer sessions.Close()
	if srvCfg.SessionIdleTimeout > 0 {
		go sessions.Run(ctx, sweepInterval(srvCfg.SessionIdleTimeout))
	}

	srv := &http.Server{
		Addr:              srvCfg.Listen,
		Handler:           server.New(sessions, server.WithGatherer(reg), server.WithLogger(a.logger)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      a.cfg.SecureFlow.Scoring.Timeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown", "error", err)
		}
	}()

	a.logger.Info("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

// sweepInterval checks for idle sessions twice per timeout, within [1s, 1m].
func sweepInterval(idle time.Duration) time.Duration {
	return min(max(idle/2, time.Second), time.Minute)
}
