package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"agentgate/internal/brain"
	"agentgate/internal/channel"
	"agentgate/internal/config"
	"agentgate/internal/dispatch"
	"agentgate/internal/metrics"
	"agentgate/internal/router"
	"agentgate/internal/socket"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway",
		Long:  "Serves the channel webhooks, the brain endpoint, the socket transport, health and metrics. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// gateway is everything serve wires together.
type gateway struct {
	handler    http.Handler
	brain      *brain.Built
	dispatcher interface{ Close() error }
	socket     *socket.Server
}

func (g *gateway) Close() {
	if g.socket != nil {
		g.socket.Close()
	}
	if g.dispatcher != nil {
		if err := g.dispatcher.Close(); err != nil {
			logger.Warn("dispatcher close failed", "err", err)
		}
	}
	if g.brain != nil {
		if err := g.brain.Close(); err != nil {
			logger.Warn("brain close failed", "err", err)
		}
	}
}

// buildGateway assembles the HTTP surface from cfg.
func buildGateway(ctx context.Context, cfg *config.Config, m *metrics.Collector) (*gateway, error) {
	g := &gateway{}

	b, err := brain.FromConfig(ctx, cfg, m, logger)
	if err != nil {
		return nil, fmt.Errorf("brain: %w", err)
	}
	g.brain = b

	disp, err := dispatch.New(cfg.Dispatch, b, logger)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	g.dispatcher = disp

	adapters := channel.FromConfig(cfg.Channels, logger)
	rt := router.New(router.Config{
		Adapters:           adapters,
		Dispatcher:         disp,
		RateLimitPerMinute: cfg.Router.RateLimitPerMinute,
		RateBurst:          cfg.Router.RateBurst,
		Metrics:            m,
		Logger:             logger,
	})

	g.socket = socket.New(socket.Config{
		Processor:      b,
		AllowedOrigins: cfg.Socket.AllowedOrigins,
		MaxInflight:    cfg.Socket.MaxInflight,
		Metrics:        m,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	rt.Register(mux)
	mux.Handle("POST /brain/process", brain.Handler(b, logger))
	mux.Handle("GET /health", g.socket.HealthHandler())
	if cfg.Socket.Enabled {
		g.socket.Register(mux, cfg.Socket.Path)
	}
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}
	g.handler = mux

	logger.Info("gateway wired",
		"channels", len(adapters), "dispatch", disp.Name(),
		"socket", cfg.Socket.Enabled, "metrics", cfg.Metrics.Enabled)
	return g, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logClose, err := setupLogger(cfg.General)
	if err != nil {
		return err
	}
	defer logClose.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := buildGateway(ctx, cfg, metrics.Default)
	if err != nil {
		return err
	}
	defer g.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "%s agentgate %s listening on %s\n", color.GreenString("●"), version, srv.Addr)
	logger.Info("server started", "addr", srv.Addr, "version", version)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out, forcing exit", "err", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
