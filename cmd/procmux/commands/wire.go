package commands

import (
	"fmt"

	"procmux/internal/adapter/launcher"
	"procmux/internal/adapter/logger"
	"procmux/internal/adapter/probe"
	"procmux/internal/adapter/proc"
	"procmux/internal/adapter/store"
	"procmux/internal/adapter/token"
	"procmux/internal/app"
	"procmux/internal/config"
)

// deps bundles the wired runtime components shared by all commands.
type deps struct {
	cfg     *config.Config
	logger  *logger.Zerolog
	repo    *store.FileRepository
	procs   *proc.Controller
	manager *app.Manager
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	procs := proc.NewController(log)
	repo := store.NewFileRepository(cfg.Storage.DataDir, procs.Exists, log)
	if err := repo.EnsureDir(); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	launch := launcher.New(cfg.Backend.Command, cfg.Backend.BaseURLPrefix, launcher.NewPlatformSpawner(log), log)
	prober := probe.NewHTTPProber(int(cfg.Probe.Attempts), cfg.Probe.Backoff, log)
	manager := app.NewManager(repo, launch, prober, token.NewRandomGenerator(), procs, log)

	return &deps{
		cfg:     cfg,
		logger:  log,
		repo:    repo,
		procs:   procs,
		manager: manager,
	}, nil
}
