package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/nroy/internal/config"
	"github.com/dyluth/nroy/internal/logging"
	"github.com/dyluth/nroy/internal/orchestrator"
	"github.com/dyluth/nroy/internal/printer"
	"github.com/dyluth/nroy/internal/simulator"
	"github.com/dyluth/nroy/internal/storage"
	"github.com/dyluth/nroy/pkg/ledger"
)

// session holds what every campaign command needs: the validated
// configuration, a logger and the campaign bound to its ledger.
type session struct {
	cfg      *config.CampaignConfig
	logger   *zap.Logger
	store    storage.Store
	ledger   *ledger.Ledger
	campaign *orchestrator.Campaign
	health   *orchestrator.HealthServer
	closers  []func() error
}

// openSession loads the configuration and opens the campaign store. With
// withDriver the configured simulator driver is started as well, and the
// health server when metrics_addr is set.
func openSession(ctx context.Context, withDriver bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(overrides.LogLevel(), overrides.LogFormat())
	if err != nil {
		return nil, printer.Error(
			"invalid logging configuration",
			err.Error(),
			[]string{"Use --log-level debug|info|warn|error and --log-format console|json"},
		)
	}

	s := &session{cfg: cfg, logger: logger}
	s.closers = append(s.closers, func() error {
		logger.Sync()
		return nil
	})

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.Close()
		return nil, printer.ErrorWithContext(
			"storage unavailable",
			fmt.Sprintf("Could not open the %s store: %v", cfg.Storage.Backend, err),
			storageContext(cfg),
			[]string{
				"Check the storage section of " + configPath,
				"Override the backend for this invocation:\n  nroy --storage filesystem --storage-path .nroy ...",
			},
		)
	}
	s.store = store
	s.closers = append(s.closers, store.Close)

	s.ledger, err = ledger.New(store, cfg.Name)
	if err != nil {
		s.Close()
		return nil, err
	}

	var driver simulator.Driver
	if withDriver {
		d, closeDriver, err := orchestrator.NewDriver(ctx, cfg, logger)
		if err != nil {
			s.Close()
			return nil, printer.Error(
				"simulator driver unavailable",
				err.Error(),
				[]string{"Check the simulator section of " + configPath},
			)
		}
		driver = d
		s.closers = append(s.closers, closeDriver)
	}

	s.campaign, err = orchestrator.New(cfg, s.ledger, driver, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	if withDriver && cfg.MetricsAddr != "" {
		s.health = orchestrator.NewHealthServer(cfg.MetricsAddr, s.ledger, logger)
		if err := s.health.Start(); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close stops the health server and releases the driver, the store and the
// logger in reverse order of acquisition.
func (s *session) Close() {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.health.Shutdown(ctx)
		cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && s.logger != nil {
			s.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}

// loadConfig reads the campaign configuration with overrides applied and
// resolves its relative paths against the configuration's directory.
func loadConfig() (*config.CampaignConfig, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, printer.Error(
			fmt.Sprintf("%s not found", configPath),
			"No campaign configuration found.",
			[]string{
				"Create a starter campaign:\n  nroy init",
				"Point at an existing configuration:\n  nroy --config path/to/campaign.yml ...",
			},
		)
	}

	cfg, err := config.LoadWithOverrides(configPath, overrides)
	if err != nil {
		return nil, printer.Error(
			"invalid campaign configuration",
			err.Error(),
			[]string{"Fix " + configPath + " and try again"},
		)
	}

	abs, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration directory: %w", err)
	}
	cfg.ResolvePaths(abs)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so running simulations
// stop and completed results stay recorded.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// explain converts campaign errors into formatted CLI errors.
func explain(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return printer.Error(
			"interrupted",
			"The campaign was interrupted. Completed simulations are recorded.",
			[]string{"Resume with:\n  nroy simulate"},
		)
	case errors.Is(err, orchestrator.ErrNoDesign):
		return printer.Error(
			"no design found",
			err.Error(),
			[]string{"Draw the design and run the simulations first:\n  nroy simulate"},
		)
	case errors.Is(err, orchestrator.ErrDesignMismatch):
		return printer.Error(
			"design does not match configuration",
			err.Error(),
			[]string{
				"Restore the original parameter bounds in " + configPath,
				"Discard the stored campaign and start again:\n  nroy reset --force",
			},
		)
	case errors.Is(err, orchestrator.ErrAllSimulationsFailed):
		return printer.Error(
			"all simulations failed",
			err.Error(),
			[]string{
				"Inspect the failures:\n  nroy export --failures",
				"Fix the simulator, then retry the failed points:\n  nroy simulate --retry-failed",
			},
		)
	case errors.Is(err, orchestrator.ErrInsufficientData):
		return printer.Error(
			"not enough observations",
			err.Error(),
			[]string{
				"Retry the failed points:\n  nroy simulate --retry-failed",
				"Increase design.training_points in " + configPath + " and reset the campaign",
			},
		)
	case errors.Is(err, orchestrator.ErrNoDriver):
		return printer.Error(
			"simulator required",
			err.Error(),
			[]string{"Configure the simulator section of " + configPath},
		)
	case ledger.IsNotFound(err):
		return printer.Error(
			"nothing to show",
			err.Error(),
			[]string{"Run the analysis first:\n  nroy analyse"},
		)
	}
	return err
}

func storageContext(cfg *config.CampaignConfig) map[string]string {
	ctx := map[string]string{
		"campaign": cfg.Name,
		"backend":  cfg.Storage.Backend,
	}
	switch cfg.Storage.Backend {
	case storage.BackendFilesystem:
		ctx["path"] = cfg.Storage.Path
	case storage.BackendRedis:
		ctx["redis_url"] = cfg.Storage.RedisURL
	case storage.BackendMinio:
		ctx["endpoint"] = cfg.Storage.Minio.Endpoint
		ctx["bucket"] = cfg.Storage.Minio.Bucket
	}
	return ctx
}
