package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"tracefood/internal/core"
	"tracefood/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr           string
		snapshotOnExit bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			manager, err := a.authManager()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := core.NewPrometheusMetricsRecorder(reg)
			if err != nil {
				return err
			}
			feed := httpapi.NewFeed(a.log.Named("feed"), a.cfg.Server.CorsAllowedOrigins...)

			rt, err := a.open(ctx, core.WithMetricsRecorder(metrics), core.WithLotObserver(feed))
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				if snapshotOnExit {
					saveExitSnapshot(closeCtx, a, rt)
				}
				if err := rt.Close(closeCtx); err != nil {
					a.log.Error("shutdown incomplete", "error", err)
				}
			}()

			srv, err := httpapi.New(rt.svc, httpapi.Options{
				Auth:        manager,
				Logger:      a.log.Named("http"),
				Feed:        feed,
				Registry:    reg,
				CorsOrigins: a.cfg.Server.CorsAllowedOrigins,
			})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, httpapi.ServeConfig{
				Addr:            addr,
				ReadTimeout:     a.cfg.Server.ReadTimeout,
				WriteTimeout:    a.cfg.Server.WriteTimeout,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&snapshotOnExit, "snapshot-on-exit", false, "archive a snapshot during shutdown")
	return cmd
}

func saveExitSnapshot(ctx context.Context, a *app, rt *runtime) {
	arc, err := a.archive(ctx)
	if err != nil {
		a.log.Error("exit snapshot skipped", "error", err)
		return
	}
	start := time.Now()
	entry, err := arc.Save(ctx, rt.svc.ExportState(ctx))
	if err != nil {
		a.log.Error("exit snapshot failed", "error", err)
		return
	}
	a.log.Info("exit snapshot archived", "key", entry.Key, "lots", entry.Lots, "duration_ms", time.Since(start).Milliseconds())
}
