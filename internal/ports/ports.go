package ports

import (
	"chat-oracle/internal/entity"
	"context"
	"time"
)

// Driver is the browser surface the login and query flows are written against.
// Selectors use the driver's selector syntax, including ">> nth=N" suffixes.
type Driver interface {
	Launch(ctx context.Context, state *entity.SessionState) error
	Close(ctx context.Context) error
	IsReady() bool
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	CurrentURL() string
	Count(ctx context.Context, selector string) (int, error)
	IsVisible(ctx context.Context, selector string) bool
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string, delay, timeout time.Duration) error
	Press(ctx context.Context, selector, key string, timeout time.Duration) error
	InputValue(ctx context.Context, selector string, timeout time.Duration) (string, error)
	InnerText(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error)
	EvaluateJS(ctx context.Context, script string, arg any) (any, error)
	Screenshot(ctx context.Context, path string) error
	Cookies(ctx context.Context, origin string) ([]entity.Cookie, error)
	StorageState(ctx context.Context) (*entity.SessionState, error)
}

type SessionStore interface {
	Profile(name string) (entity.Profile, error)
	Load(profile entity.Profile) (*entity.SessionState, bool)
	Save(profile entity.Profile, state *entity.SessionState) error
}

type CredentialProvider interface {
	GetCredentials(ctx context.Context) (entity.Credentials, error)
}

// CodePrompter asks the operator for a one-time verification code. It blocks
// until the operator answers.
type CodePrompter interface {
	PromptCode(ctx context.Context, message string) (string, error)
}
