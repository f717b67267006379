package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/rabbitmq"
)

// serve runs the HTTP server until ctx is cancelled, the listener fails or
// brokerDone is closed, then shuts down gracefully. Losing the broker is
// reported as an error so the process exits non-zero.
func serve(
	ctx context.Context,
	cfg config.ServerConfig,
	handler http.Handler,
	brokerDone <-chan struct{},
	logger *slog.Logger,
) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-brokerDone:
		logger.Error("broker connection lost, shutting down")
		runErr = fmt.Errorf("%w: connection lost", rabbitmq.ErrBrokerUnavailable)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}

	logger.Info("server stopped")
	return runErr
}
