// Command roles-api serves the role-check HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tailscale-portfolio/role-gateway/internal/app"
	"github.com/tailscale-portfolio/role-gateway/internal/config"
	"github.com/tailscale-portfolio/role-gateway/internal/httpapi"
	"github.com/tailscale-portfolio/role-gateway/internal/logging"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting roles api",
		"listen", cfg.ListenAddr,
		"env", cfg.Env,
		"version", cfg.Version,
	)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	handler, err := httpapi.New(httpapi.Deps{
		Logger:    logger,
		Verifier:  a.Verifier,
		Directory: a.Directory,
		Store:     a.Store,
		Resolver:  a.Resolver,
		Cursor:    httpapi.NewCursorCodec([]byte(cfg.PageTokenHashKey), []byte(cfg.PageTokenBlockKey)),
		Info: httpapi.ServiceInfo{
			Name:        cfg.ServiceName,
			Version:     cfg.Version,
			Description: "Supplier and admin role checks over a verified identity",
			Environment: cfg.Env,
		},
		Production:  cfg.IsProduction(),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow,
		StartedAt:   time.Now(),
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.ListenAddr, "error", err)
		os.Exit(1)
	}
	if err := serve(ctx, server, ln, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// serve runs server on ln until ctx is done, then drains in-flight requests for up to
// shutdownTimeout. It returns only once draining has finished.
func serve(ctx context.Context, server *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	drained := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		drained <- server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-drained; err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	return nil
}
