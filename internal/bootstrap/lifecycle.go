package bootstrap

import (
	"chat-oracle/internal/config"
	"chat-oracle/internal/ports"
	"chat-oracle/pkg/logg"
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type browserParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Driver    ports.Driver
	Store     ports.SessionStore
	Logger    *zap.Logger
}

// manageBrowser launches the browser with the profile's saved session on
// start and closes it on stop.
func manageBrowser(params browserParams) {
	logger := params.Logger.With(zap.String(logg.Layer, "Lifecycle"))

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			profile, err := params.Store.Profile(params.Config.OracleConfig.Profile)
			if err != nil {
				return err
			}

			state, ok := params.Store.Load(profile)
			if !ok {
				logger.Debug("No saved session; starting clean", zap.String(logg.Profile, profile.Name))
			}

			logger.Debug("Launching browser",
				zap.String(logg.Profile, profile.Name),
				zap.Bool("headless", params.Config.BrowserConfig.Headless))

			return params.Driver.Launch(ctx, state)
		},
		OnStop: func(ctx context.Context) error {
			if err := params.Driver.Close(ctx); err != nil {
				logger.Warn("Failed to close browser", zap.Error(err))

				return err
			}

			return nil
		},
	})
}
