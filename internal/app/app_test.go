package app

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/pm-endgame/internal/ingest"
	"github.com/mselser95/pm-endgame/internal/scoring"
	"github.com/mselser95/pm-endgame/internal/testutil"
	"github.com/mselser95/pm-endgame/pkg/config"
	"github.com/mselser95/pm-endgame/pkg/healthprobe"
	"github.com/mselser95/pm-endgame/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Constructor validation runs before any component dials out, so these
// cases need no database.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	logger := zap.NewNop()

	tests := []struct {
		name    string
		cfg     *config.Config
		logger  *zap.Logger
		opts    *Options
		wantErr string
	}{
		{
			name:    "nil-config",
			cfg:     nil,
			logger:  logger,
			opts:    &Options{Ingest: true},
			wantErr: "config cannot be nil",
		},
		{
			name:    "nil-logger",
			cfg:     cfg,
			logger:  nil,
			opts:    &Options{Ingest: true},
			wantErr: "logger cannot be nil",
		},
		{
			name:    "nil-options",
			cfg:     cfg,
			logger:  logger,
			opts:    nil,
			wantErr: "at least one service must be enabled",
		},
		{
			name:    "no-services-enabled",
			cfg:     cfg,
			logger:  logger,
			opts:    &Options{},
			wantErr: "at least one service must be enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.logger, tt.opts)
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestScoringParams(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		WeightVelocity:   0.40,
		WeightNetYield:   0.30,
		WeightLiquidity:  0.15,
		WeightDefRisk:    0.10,
		WeightStaleness:  0.05,
		MinTRemainingSec: 7200,
		MaxTRemainingSec: 604800,
		QuoteStaleMaxSec: 300,
		MinTDays:         0.5,
		SpreadTarget:     0.03,
		FeeBps:           200,
		BasePositionPct:  0.08,
	}

	params := scoringParams(cfg)

	if params.Weights.Velocity != 0.40 || params.Weights.NetYield != 0.30 {
		t.Errorf("Weights = %+v, want velocity 0.40 and net yield 0.30", params.Weights)
	}
	if params.Weights.Liquidity != 0.15 || params.Weights.DefinitionRisk != 0.10 || params.Weights.Staleness != 0.05 {
		t.Errorf("Weights = %+v, want liquidity 0.15, def risk 0.10, staleness 0.05", params.Weights)
	}
	if params.Bounds.MinTRemainingSec != 7200 || params.Bounds.MaxTRemainingSec != 604800 {
		t.Errorf("Bounds window = [%d, %d], want [7200, 604800]", params.Bounds.MinTRemainingSec, params.Bounds.MaxTRemainingSec)
	}
	if params.Bounds.QuoteStaleMaxSec != 300 {
		t.Errorf("QuoteStaleMaxSec = %d, want 300", params.Bounds.QuoteStaleMaxSec)
	}
	if params.Bounds.MinTDays != 0.5 {
		t.Errorf("MinTDays = %f, want 0.5", params.Bounds.MinTDays)
	}
	if params.Bounds.SpreadTarget != 0.03 {
		t.Errorf("SpreadTarget = %f, want 0.03", params.Bounds.SpreadTarget)
	}
	if params.FeeBps != 200 {
		t.Errorf("FeeBps = %f, want 200", params.FeeBps)
	}
	if params.Sizing.BasePositionPct != 0.08 {
		t.Errorf("BasePositionPct = %f, want 0.08", params.Sizing.BasePositionPct)
	}
}

// newTestApp assembles an App around in-memory fakes, the way New would
// wire it with HEALTH_PROBE_PORT=0 and no API.
func newTestApp(t *testing.T, mockVenue *testutil.MockVenue, mockStorage *testutil.MockStorage) *App {
	t.Helper()

	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())

	ingestOrch, err := ingest.New(&ingest.Config{
		Venue:                  mockVenue,
		Storage:                mockStorage,
		DiscoveryCadence:       time.Hour,
		QuotesCadence:          time.Hour,
		RulesRefreshCadence:    time.Hour,
		MaxMarketsPerDiscovery: 100,
		MaxQuotesPerFetch:      50,
		MaxChannelSize:         100,
		Logger:                 logger,
	})
	if err != nil {
		cancel()
		t.Fatalf("Failed to create ingest orchestrator: %v", err)
	}

	scoringOrch, err := scoring.New(&scoring.Config{
		Storage: mockStorage,
		Params:  scoring.DefaultParams(),
		Cadence: time.Hour,
		Logger:  logger,
	})
	if err != nil {
		cancel()
		t.Fatalf("Failed to create scoring orchestrator: %v", err)
	}

	return &App{
		cfg:           &config.Config{LogLevel: "info"},
		logger:        logger,
		healthChecker: healthprobe.New(),
		ingestOrch:    ingestOrch,
		scoringOrch:   scoringOrch,
		storage:       mockStorage,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestRunAndShutdown(t *testing.T) {
	mockVenue := &testutil.MockVenue{}
	mockStorage := testutil.NewMockStorage()

	// The quote sweep only reaches the venue when the active window is
	// non-empty.
	market := testutil.CreateTestMarket("mkt-1", 48*time.Hour)
	mockStorage.SetActiveMarkets([]types.Market{market})

	a := newTestApp(t, mockVenue, mockStorage)

	runDone := make(chan error, 1)
	go func() {
		runDone <- a.Run()
	}()

	// The immediate sweeps prove the orchestrators are up.
	waitFor(t, 2*time.Second, "first discovery sweep", func() bool {
		return mockVenue.DiscoverCalls() >= 1
	})
	waitFor(t, 2*time.Second, "first quote sweep", func() bool {
		return mockVenue.QuoteCalls() >= 1
	})

	a.cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() returned error after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
