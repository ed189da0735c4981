// Package app wires the configured services into one process: shared
// Postgres storage on one side, the ingest and scoring orchestrators and
// the HTTP surfaces on the other. Which services run is decided per
// subcommand through Options.
package app

import (
	"context"
	"sync"

	"github.com/mselser95/pm-endgame/internal/ingest"
	"github.com/mselser95/pm-endgame/internal/scoring"
	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/pkg/config"
	"github.com/mselser95/pm-endgame/pkg/healthprobe"
	"github.com/mselser95/pm-endgame/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the process orchestrator. Service fields are nil when the
// corresponding service is not enabled.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	probeServer   *healthprobe.Server
	httpServer    *httpserver.Server
	ingestOrch    *ingest.Orchestrator
	scoringOrch   *scoring.Orchestrator
	storage       storage.Storage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options selects which services the process runs. At least one must be
// enabled.
type Options struct {
	Ingest bool
	Score  bool
	API    bool
}
