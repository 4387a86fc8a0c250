package usecase

import (
	"chat-oracle/internal/config"
	"chat-oracle/internal/ports"
	"chat-oracle/internal/usecase/adapters"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Auth  adapters.AuthService
	Query adapters.QueryService
}

type Params struct {
	fx.In

	Logger      *zap.Logger
	Config      *config.Config
	Driver      ports.Driver
	Store       ports.SessionStore
	Credentials ports.CredentialProvider
	Prompter    ports.CodePrompter
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Auth:  factory.CreateAuthService(),
		Query: factory.CreateQueryService(factory.CreateModelSelector()),
	}
}
