package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/internal/api"
	"github.com/ministore/recordstore/internal/tracing"
)

func newServeCommand(a *app) *cobra.Command {
	defaults := a.defaults()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the records REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}

	fs := cmd.Flags()
	fs.Int("http-port", defaults.Server.HTTPPort, "HTTP port")
	fs.String("mode", defaults.Server.ServerMode, "server mode: dev|prod")
	fs.Bool("auth-enabled", defaults.Auth.Enabled, "verify bearer tokens")
	fs.String("superuser-collection", defaults.Auth.SuperuserCollection, "collection whose tokens bypass rules")
	fs.Bool("tracing-enabled", defaults.Tracing.Enabled, "export traces")
	fs.String("tracing-exporter", defaults.Tracing.Exporter, "trace exporter: none|stdout|otlp")
	fs.String("otlp-endpoint", defaults.Tracing.OTLPEndpoint, "OTLP collector endpoint")
	a.bind(cmd, map[string]string{
		"server.http-port":          "http-port",
		"server.mode":               "mode",
		"auth.enabled":              "auth-enabled",
		"auth.superuser-collection": "superuser-collection",
		"tracing.enabled":           "tracing-enabled",
		"tracing.exporter":          "tracing-exporter",
		"tracing.otlp-endpoint":     "otlp-endpoint",
	}, false)

	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	cfg, restore, err := a.load(cmd)
	if err != nil {
		return err
	}
	defer restore()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			zap.S().Warnw("trace provider shutdown", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg, tp.Tracer())
	if err != nil {
		return err
	}
	defer store.Close()

	handler := api.NewHandler(store, api.AuthConfig{
		Enabled:             cfg.Auth.Enabled,
		Secret:              []byte(cfg.Auth.Secret),
		SuperuserCollection: cfg.Auth.SuperuserCollection,
	})
	srv := api.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		zap.S().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Stop(shutdownCtx)
		return <-errCh
	}
}
