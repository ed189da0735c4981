package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// shutdownTimeout bounds the HTTP drain on shutdown. The orchestrators
// carry their own drain timeouts.
const shutdownTimeout = 10 * time.Second

// Shutdown gracefully shuts down the services. Storage closes only after
// the orchestrator goroutines finish, because the ingest writers flush
// their buffered batches into it while draining.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal the orchestrators
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if a.httpServer != nil {
		err := a.httpServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("http-server-shutdown-error", zap.Error(err))
		}
	}

	if a.probeServer != nil {
		err := a.probeServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("health-probe-shutdown-error", zap.Error(err))
		}
	}

	// Wait for all goroutines
	a.wg.Wait()

	err := a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}
