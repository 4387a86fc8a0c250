package usecase

import (
	"chat-oracle/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateAuthService() adapters.AuthService {
	return NewAuthService(AuthServiceParams{
		Config:      f.deps.Config,
		Logger:      f.deps.Logger,
		Driver:      f.deps.Driver,
		Store:       f.deps.Store,
		Credentials: f.deps.Credentials,
		Prompter:    f.deps.Prompter,
	})
}

func (f *serviceFactory) CreateModelSelector() adapters.ModelService {
	return NewModelSelector(ModelSelectorParams{
		Config: f.deps.Config,
		Logger: f.deps.Logger,
		Driver: f.deps.Driver,
	})
}

func (f *serviceFactory) CreateQueryService(selector adapters.ModelService) adapters.QueryService {
	return NewQueryService(QueryServiceParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Driver:   f.deps.Driver,
		Selector: selector,
	})
}
