package bootstrap

import (
	"chat-oracle/internal/browser"
	"chat-oracle/internal/config"
	"chat-oracle/internal/credentials"
	"chat-oracle/internal/ports"
	"chat-oracle/internal/session"
	"chat-oracle/internal/usecase"
	"context"
	"errors"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	startTimeout = 3 * time.Minute
	stopTimeout  = 15 * time.Second
)

// Job is one command's work against a running browser.
type Job func(ctx context.Context, svc *usecase.Service) error

func NewApp(cfg *config.Config, svc **usecase.Service) *fx.App {
	return fx.New(
		fx.Supply(cfg),

		fx.Provide(
			newLogger,
			newTraceProvider,

			fx.Annotate(browser.NewManager, fx.As(new(ports.Driver))),
			fx.Annotate(session.NewStore, fx.As(new(ports.SessionStore))),
			fx.Annotate(credentials.NewChainProvider, fx.As(new(ports.CredentialProvider))),
			fx.Annotate(credentials.NewTerminalPrompter, fx.As(new(ports.CodePrompter))),

			usecase.NewUsecase,
		),

		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),

		fx.Invoke(
			func(*sdktrace.TracerProvider) {},
			manageBrowser,
		),

		fx.Populate(svc),

		fx.StartTimeout(startTimeout),
		fx.StopTimeout(stopTimeout),
	)
}

// Run starts the application for cfg, hands the services to job and stops
// the application afterwards, whatever job returned.
func Run(ctx context.Context, cfg *config.Config, job Job) (err error) {
	var svc *usecase.Service

	app := NewApp(cfg, &svc)
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		if stopErr := app.Stop(stopCtx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	return job(ctx, svc)
}
