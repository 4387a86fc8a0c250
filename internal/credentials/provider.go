package credentials

import (
	"chat-oracle/internal/entity"
	"chat-oracle/pkg/apperr"
	"chat-oracle/pkg/logg"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	zkr "github.com/zalando/go-keyring"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KeyringService  = "chat-oracle"
	identityAccount = "identity"
	secretAccount   = "secret"
)

// EnvProvider reads login material from ORACLE_IDENTITY and ORACLE_SECRET.
type EnvProvider struct{}

type envCredentials struct {
	Identity string `envconfig:"ORACLE_IDENTITY"`
	Secret   string `envconfig:"ORACLE_SECRET"`
}

func (EnvProvider) GetCredentials(ctx context.Context) (entity.Credentials, error) {
	const op = "EnvProvider.GetCredentials"

	var env envCredentials
	if err := envconfig.Process("", &env); err != nil {
		return entity.Credentials{}, apperr.WrapWithReason(op, apperr.CodeCredentialsUnavailable, err, "env_read_failed")
	}

	var missing []string
	if env.Identity == "" {
		missing = append(missing, "ORACLE_IDENTITY")
	}

	if env.Secret == "" {
		missing = append(missing, "ORACLE_SECRET")
	}

	if len(missing) > 0 {
		return entity.Credentials{}, apperr.Wrap(op, apperr.CodeCredentialsUnavailable,
			fmt.Errorf("environment variables not set: %s", strings.Join(missing, ", ")),
			map[string]any{apperr.MetaReason: "env_missing"})
	}

	return entity.Credentials{Identity: env.Identity, Secret: env.Secret}, nil
}

// KeyringProvider reads login material from the OS keychain.
type KeyringProvider struct {
	Service string
	get     func(service, account string) (string, error)
}

func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{Service: KeyringService, get: zkr.Get}
}

func (p *KeyringProvider) GetCredentials(ctx context.Context) (entity.Credentials, error) {
	const op = "KeyringProvider.GetCredentials"

	identity, err := p.get(p.Service, identityAccount)
	if err != nil {
		return entity.Credentials{}, p.wrap(op, identityAccount, err)
	}

	secret, err := p.get(p.Service, secretAccount)
	if err != nil {
		return entity.Credentials{}, p.wrap(op, secretAccount, err)
	}

	return entity.Credentials{Identity: identity, Secret: secret}, nil
}

func (p *KeyringProvider) wrap(op, account string, err error) error {
	reason := "keychain_unavailable"
	if errors.Is(err, zkr.ErrNotFound) {
		reason = "keychain_entry_missing"
		err = fmt.Errorf("no keychain entry %q for service %q", account, p.Service)
	} else {
		err = fmt.Errorf("keychain lookup %q for service %q: %w", account, p.Service, err)
	}

	return apperr.Wrap(op, apperr.CodeCredentialsUnavailable, err, map[string]any{
		apperr.MetaReason: reason,
	})
}

// ChainProvider returns the first provider's credentials that succeed.
type ChainProvider struct {
	providers []namedProvider
	logger    *zap.Logger
}

type namedProvider struct {
	name     string
	provider interface {
		GetCredentials(ctx context.Context) (entity.Credentials, error)
	}
}

type Params struct {
	fx.In

	Logger *zap.Logger
}

// NewChainProvider tries the environment first and the OS keychain second.
func NewChainProvider(params Params) *ChainProvider {
	return &ChainProvider{
		providers: []namedProvider{
			{name: "env", provider: EnvProvider{}},
			{name: "keychain", provider: NewKeyringProvider()},
		},
		logger: params.Logger.With(zap.String(logg.Layer, "Credentials")),
	}
}

func (c *ChainProvider) GetCredentials(ctx context.Context) (entity.Credentials, error) {
	const op = "GetCredentials"

	var errs []error
	for _, p := range c.providers {
		creds, err := p.provider.GetCredentials(ctx)
		if err == nil {
			c.logger.Debug("Credentials loaded", zap.String("source", p.name))

			return creds, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}

	return entity.Credentials{}, apperr.Wrap(op, apperr.CodeCredentialsUnavailable,
		fmt.Errorf("no login credentials available: %w", errors.Join(errs...)),
		map[string]any{apperr.MetaReason: "no_provider_succeeded"})
}
