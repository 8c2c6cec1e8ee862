package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/orbitadevhub/backDashboard/external"
	"github.com/orbitadevhub/backDashboard/internal/httpapi"
	otelexport "github.com/orbitadevhub/backDashboard/metrics/export/otel"
	promexport "github.com/orbitadevhub/backDashboard/metrics/export/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply postgres migrations before serving")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, migrate bool) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}

	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, closeStore, err := openStore(ctx, cfg.Store, migrate, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, engineCfg, err := buildEngine(cfg, logger, rdb, store)
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := httpapi.Options{
		SuccessURL:   cfg.Google.SuccessURL,
		CookieSecure: cfg.Cookie.Secure,
		CookieDomain: cfg.Cookie.Domain,
		Logger:       logger.With().Str("component", "http").Logger(),
	}

	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.Handler(engine)

		// Observed by whatever SDK the process installed globally; a no-op
		// otherwise.
		exporter, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/orbitadevhub/backDashboard"), engine)
		if err != nil {
			return err
		}
		defer exporter.Close()
	}

	if cfg.Google.Enabled() {
		provider, err := external.NewGoogleProvider(external.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		if err != nil {
			return err
		}
		google := external.NewService(provider, engineCfg.External.StateTTL)
		defer google.Close()
		opts.Google = google
	}

	server := httpapi.NewServer(engine, opts)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", string(cfg.Store.Driver)).Msg("http server listening")
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
		return err
	}
	return nil
}
