package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// HandleSignals runs the HTTP server until SIGINT or SIGTERM arrives, then
// drains in-flight requests for up to shutdownTimeout. Processing runs are
// synchronous and can be long, so the drain window must cover the run
// deadline or active runs get cut off mid-persist.
func HandleSignals(srv *http.Server, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutdown signal received, draining requests...")

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("forced shutdown after %v: %w", shutdownTimeout, err)
	}

	log.Println("Server stopped")
	return nil
}
