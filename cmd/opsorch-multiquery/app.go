package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/opsorch/opsorch-multiquery/config"
	"github.com/opsorch/opsorch-multiquery/dispatch"
	"github.com/opsorch/opsorch-multiquery/environment"
	"github.com/opsorch/opsorch-multiquery/executor"
	"github.com/opsorch/opsorch-multiquery/logging"
)

// App holds the wired components shared by every command.
type App struct {
	loader *config.Loader

	Config     *config.Config
	Logger     *zap.Logger
	Registry   *environment.Registry
	Executor   executor.Executor
	Dispatcher *dispatch.Dispatcher
}

// Init resolves the configuration and builds the registry, executor and dispatcher.
func (a *App) Init() error {
	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	a.Config = cfg

	logger, err := logging.New(os.Stderr, cfg.Logging())
	if err != nil {
		return err
	}
	a.Logger = logger.With(zap.String("service", "opsorch-multiquery"))

	envs, err := environment.Load(cfg.EnvironmentsFile)
	if err != nil {
		return fmt.Errorf("loading environments: %w", err)
	}
	a.Registry, err = environment.NewRegistry(envs)
	if err != nil {
		return fmt.Errorf("invalid environments: %w", err)
	}

	constructor, ok := executor.LookupProvider(cfg.Executor)
	if !ok {
		return fmt.Errorf("executor provider %s not registered (available: %v)", cfg.Executor, executor.Providers())
	}
	settings, err := cfg.ExecutorSettings()
	if err != nil {
		return err
	}
	a.Executor, err = constructor(settings)
	if err != nil {
		return fmt.Errorf("executor %s: %w", cfg.Executor, err)
	}

	a.Dispatcher = dispatch.New(a.Registry, a.Executor, cfg.DispatchDefaults(), dispatch.WithLogger(a.Logger))
	a.Logger.Debug("Initialised",
		zap.Int("environments", len(envs)),
		zap.String("executor", cfg.Executor),
	)
	return nil
}

// ReloadEnvironments re-reads the environment source and swaps the registry content.
// On error the current content is kept.
func (a *App) ReloadEnvironments() error {
	envs, err := environment.Load(a.Config.EnvironmentsFile)
	if err != nil {
		return err
	}
	if err := a.Registry.Replace(envs); err != nil {
		return err
	}
	a.Logger.Info("Reloaded environments", zap.Int("environments", len(envs)))
	return nil
}

// Close releases executor resources such as plugin processes.
func (a *App) Close() {
	if c, ok := a.Executor.(io.Closer); ok {
		if err := c.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("Closing executor", zap.Error(err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
