package adapters

import (
	"chat-oracle/internal/entity"
	"context"
)

type AuthService interface {
	Login(ctx context.Context, profile string) (*entity.LoginResult, error)
	CheckSession(ctx context.Context, profile string) error
}

type ModelService interface {
	Select(ctx context.Context, name string) error
}

type QueryService interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Ask(ctx context.Context, prompt string) (string, error)
}
