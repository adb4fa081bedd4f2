package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

type Globals struct {
	Debug     bool
	Version   string
	Config    string
	Telemetry bool

	// pipelineOpts are appended to every pipeline, used by tests
	pipelineOpts []assets.Option
}

// setup installs the logger and, when enabled, telemetry. The returned
// function flushes telemetry and must be called before exiting.
func (g *Globals) setup(ctx context.Context) func() {
	logger.Setup(g.Debug)

	if !g.Telemetry {
		return func() {}
	}

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "assetpipe",
		Version:     g.Version,
		ConfigPath:  g.Config,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

func (g *Globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, &assets.ConfigurationError{Path: g.Config, Msg: "failed to load build configuration", Err: err}
	}
	return cfg, nil
}

// variant looks up name, reporting invalid settings as configuration errors.
func (g *Globals) variant(cfg *config.Config, name string) (*config.Variant, error) {
	v, err := cfg.Variant(name)
	if err != nil {
		return nil, &assets.ConfigurationError{Path: g.Config, Msg: "invalid variant " + name, Err: err}
	}
	return v, nil
}

// runVariant runs one variant to a terminal state.
func runVariant(ctx context.Context, globals *Globals, name string) (*assets.Result, error) {
	cfg, err := globals.loadConfig()
	if err != nil {
		return nil, err
	}

	variant, err := globals.variant(cfg, name)
	if err != nil {
		log.Error().Err(err).Str("variant", name).Msg("Build could not start")
		return nil, err
	}

	res, err := assets.New(cfg.Root, variant, globals.pipelineOpts...).Run(ctx)
	if err != nil {
		if assets.IsConfigurationError(err) {
			log.Error().Err(err).Str("variant", name).Msg("Build could not start")
		}
		return res, fmt.Errorf("variant %s failed: %w", name, err)
	}

	for _, hookErr := range res.HookErrors {
		log.Warn().Err(hookErr).Str("variant", name).Msg("Post-build hook reported an error")
	}

	return res, nil
}
