package console

import (
	"bytes"
	"chat-oracle/internal/bootstrap"
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"chat-oracle/internal/usecase"
	"chat-oracle/pkg/apperr"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	loginProfile string
	checked      string
	checkErr     error
}

func (f *fakeAuth) Login(_ context.Context, profile string) (*entity.LoginResult, error) {
	f.loginProfile = profile

	return &entity.LoginResult{Profile: profile, AlreadyLoggedIn: true}, nil
}

func (f *fakeAuth) CheckSession(_ context.Context, profile string) error {
	f.checked = profile

	return f.checkErr
}

type fakeQuery struct {
	prompt string
	answer string
}

func (f *fakeQuery) Submit(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt

	return f.answer, nil
}

func (f *fakeQuery) Ask(ctx context.Context, prompt string) (string, error) {
	return f.Submit(ctx, prompt)
}

type harness struct {
	cli     *CLI
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	auth    *fakeAuth
	query   *fakeQuery
	started *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		auth:   &fakeAuth{},
		query:  &fakeQuery{answer: "42"},
	}

	h.cli = &CLI{
		loadConfig: func() (*config.Config, error) {
			return &config.Config{
				AppConfig:     &config.AppConfig{LogLevel: "warn"},
				BrowserConfig: &config.BrowserConfig{Headless: true},
				OracleConfig:  &config.OracleConfig{Profile: "default", Model: "gpt-5", Timeout: 2 * time.Minute},
				TimingConfig:  &config.TimingConfig{},
			}, nil
		},
		run: func(ctx context.Context, cfg *config.Config, job bootstrap.Job) error {
			h.started = cfg

			return job(ctx, &usecase.Service{Auth: h.auth, Query: h.query})
		},
		stdout: h.stdout,
		stderr: h.stderr,
	}

	return h
}

func TestAsk_PrintsAnswerOnStdout(t *testing.T) {
	h := newHarness(t)

	code := h.cli.Execute(context.Background(), []string{
		"--profile", "work", "--model", "thinking", "--timeout", "90000", "--retries", "2", "--visible",
		"what", "is", "the", "answer?",
	})

	require.Equal(t, 0, code, h.stderr.String())
	assert.Equal(t, "42\n", h.stdout.String())
	assert.Equal(t, "what is the answer?", h.query.prompt)
	assert.Equal(t, "work", h.auth.checked)

	cfg := h.started
	require.NotNil(t, cfg)
	assert.Equal(t, "work", cfg.OracleConfig.Profile)
	assert.Equal(t, "thinking", cfg.OracleConfig.Model)
	assert.Equal(t, 90*time.Second, cfg.OracleConfig.Timeout)
	assert.Equal(t, 2, cfg.OracleConfig.Retries)
	assert.False(t, cfg.BrowserConfig.Headless)
	assert.Equal(t, "warn", cfg.AppConfig.LogLevel)
}

func TestAsk_UnsetFlagsKeepEnvironment(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.cli.Execute(context.Background(), []string{"hi"}))

	cfg := h.started
	assert.Equal(t, "default", cfg.OracleConfig.Profile)
	assert.Equal(t, "gpt-5", cfg.OracleConfig.Model)
	assert.Equal(t, 2*time.Minute, cfg.OracleConfig.Timeout)
	assert.True(t, cfg.BrowserConfig.Headless)
}

func TestAsk_MissingPrompt(t *testing.T) {
	h := newHarness(t)

	code := h.cli.Execute(context.Background(), []string{"--profile", "work"})

	assert.Equal(t, 1, code)
	assert.Nil(t, h.started)
	assert.Empty(t, h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Usage:")
	assert.Contains(t, h.stderr.String(), "a prompt is required")
}

func TestAsk_InvalidSessionHintsLogin(t *testing.T) {
	h := newHarness(t)
	h.auth.checkErr = apperr.Wrap("CheckSession", apperr.CodeSessionInvalid,
		errors.New(`profile "work": no saved session`),
		map[string]any{apperr.MetaProfile: "work"})

	code := h.cli.Execute(context.Background(), []string{"--profile", "work", "hello"})

	assert.Equal(t, 1, code)
	assert.Empty(t, h.query.prompt)
	assert.Contains(t, h.stderr.String(), "oracle login --profile work")
}

func TestAsk_RejectsNonPositiveTimeout(t *testing.T) {
	h := newHarness(t)

	code := h.cli.Execute(context.Background(), []string{"--timeout", "0", "hello"})

	assert.Equal(t, 1, code)
	assert.Nil(t, h.started)
	assert.Contains(t, h.stderr.String(), "timeout must be positive")
}

func TestAsk_HelpWordIsAPrompt(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 0, h.cli.Execute(context.Background(), []string{"help", "me", "write", "a", "haiku"}))
	assert.Equal(t, "help me write a haiku", h.query.prompt)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	code := h.cli.Execute(context.Background(), []string{"login", "--profile", "personal", "--verbose"})

	require.Equal(t, 0, code, h.stderr.String())
	assert.Equal(t, "personal", h.auth.loginProfile)
	assert.Equal(t, "debug", h.started.AppConfig.LogLevel)
	assert.Empty(t, h.stdout.String())
	assert.Contains(t, h.stderr.String(), `Already logged in (profile "personal")`)
}

func TestFormatError(t *testing.T) {
	plain := FormatError(errors.New("boom"), "default")
	assert.Equal(t, "error: boom", plain)

	invalid := FormatError(apperr.WrapErrorWithReason("CheckSession", apperr.CodeSessionInvalid, "expired"), "team")
	assert.Contains(t, invalid, "oracle login --profile team")
}
