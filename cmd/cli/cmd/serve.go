// Package cmd - serve command
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shop-pricing/api"
	"shop-pricing/core/principal"
	"shop-pricing/internal/config"
	"shop-pricing/internal/logging"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pricing HTTP API",
	Long: `Run the pricing HTTP API.

Tenant routes require a bearer token signed with auth.jwt_secret
(SHOP_PRICING_JWT_SECRET). /health, /version and /metrics are public.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	auth, err := principal.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	eng, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := api.NewServer(Version, eng, auth).HTTPServer(cfg.Server.Addr, cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std())

	errCh := make(chan error, 1)
	go func() {
		logging.Info("pricing API listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.String("version", Version),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error("pricing API stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logging.Debug("listener closed", zap.String("addr", cfg.Server.Addr))
	logging.Sync()
	return nil
}
