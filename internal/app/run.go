package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the enabled services and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.Bool("ingest", a.ingestOrch != nil),
		zap.Bool("score", a.scoringOrch != nil),
		zap.Bool("api", a.httpServer != nil),
		zap.String("log-level", a.cfg.LogLevel))

	a.startServices()

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready")

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startServices() {
	if a.probeServer != nil {
		a.wg.Add(1)
		go a.runProbeServer()
	}

	if a.httpServer != nil {
		a.wg.Add(1)
		go a.runHTTPServer()
	}

	if a.ingestOrch != nil {
		a.wg.Add(1)
		go a.runIngest()
	}

	if a.scoringOrch != nil {
		a.wg.Add(1)
		go a.runScoring()
	}
}

func (a *App) runProbeServer() {
	defer a.wg.Done()
	err := a.probeServer.Start()
	if err != nil {
		a.logger.Error("health-probe-error", zap.Error(err))
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runIngest() {
	defer a.wg.Done()
	err := a.ingestOrch.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("ingest-orchestrator-error", zap.Error(err))
	}
}

func (a *App) runScoring() {
	defer a.wg.Done()
	err := a.scoringOrch.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("scoring-orchestrator-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
