package usecase

import (
	"chat-oracle/internal/chatui"
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"chat-oracle/internal/ports"
	"chat-oracle/pkg/apperr"
	"chat-oracle/pkg/logg"
	"chat-oracle/pkg/poll"
	"chat-oracle/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	authServiceName = "AuthService"
	authTracer      = "usecase.auth"

	verificationPrompt = "Enter the verification code sent to your email: "
)

type AuthService struct {
	config   *config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
	driver   ports.Driver
	store    ports.SessionStore
	creds    ports.CredentialProvider
	prompter ports.CodePrompter
}

type AuthServiceParams struct {
	fx.In

	Config      *config.Config
	Logger      *zap.Logger
	Driver      ports.Driver
	Store       ports.SessionStore
	Credentials ports.CredentialProvider
	Prompter    ports.CodePrompter
}

func NewAuthService(params AuthServiceParams) *AuthService {
	return &AuthService{
		config:   params.Config,
		logger:   params.Logger.With(zap.String(logg.Layer, authServiceName)),
		tracer:   otel.Tracer(authTracer),
		driver:   params.Driver,
		store:    params.Store,
		creds:    params.Credentials,
		prompter: params.Prompter,
	}
}

// loginRun is the mutable state threaded through one login attempt.
type loginRun struct {
	result    *entity.LoginResult
	profile   entity.Profile
	logger    *zap.Logger
	codeInput string
	codeBoxes int
}

type authStep func(ctx context.Context, run *loginRun) (entity.AuthState, error)

// transitions lists every non-terminal state and the step that leaves it.
func (s *AuthService) transitions() map[entity.AuthState]authStep {
	return map[entity.AuthState]authStep{
		entity.AuthStateStart:                s.navigate,
		entity.AuthStateNavigated:            s.detectOrEnterCredentials,
		entity.AuthStateAlreadyAuthenticated: s.acceptExistingSession,
		entity.AuthStateCredentialsEntered:   s.awaitVerification,
		entity.AuthStateVerificationPending:  s.submitVerification,
		entity.AuthStateVerificationSkipped:  s.confirm,
	}
}

// Login drives the browser to an authenticated session for profileName and
// persists it. An existing valid session is reused without entering
// credentials.
func (s *AuthService) Login(ctx context.Context, profileName string) (result *entity.LoginResult, err error) {
	const op = "Login"

	runID := uuid.New()
	logger := s.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Profile, profileName),
		zap.String(logg.RunID, runID.String()),
	)

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("profile", profileName))
	defer func() {
		step.End(err)
	}()

	if !s.driver.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	profile, err := s.store.Profile(profileName)
	if err != nil {
		return nil, err
	}

	run := &loginRun{
		result: &entity.LoginResult{
			RunID:   runID,
			Profile: profile.Name,
			Path:    []entity.AuthState{entity.AuthStateStart},
		},
		profile: profile,
		logger:  logger,
	}

	steps := s.transitions()
	state := entity.AuthStateStart

	for !state.Terminal() {
		next, ok := steps[state]
		if !ok {
			return run.result, apperr.Wrap(op, apperr.CodeInternal,
				fmt.Errorf("no transition from state %q", state), map[string]any{
					apperr.MetaStage: apperr.StageAuth,
				})
		}

		nextState, stepErr := next(ctx, run)
		if stepErr != nil {
			run.result.Path = append(run.result.Path, entity.AuthStateFailed)
			logger.Warn("Login step failed",
				zap.String(logg.State, string(state)),
				zap.Error(stepErr))

			return run.result, stepErr
		}

		logger.Debug("Login transition",
			zap.String("from", string(state)),
			zap.String("to", string(nextState)))
		step.AddEvent(string(nextState))

		state = nextState
		run.result.Path = append(run.result.Path, state)
	}

	if err := s.persist(ctx, run); err != nil {
		return run.result, err
	}

	run.result.FinishedAt = time.Now()
	logger.Info("Login confirmed",
		zap.Bool("already_logged_in", run.result.AlreadyLoggedIn),
		zap.Bool("verification_asked", run.result.VerificationAsked))

	return run.result, nil
}

func (s *AuthService) navigate(ctx context.Context, run *loginRun) (entity.AuthState, error) {
	base := s.config.OracleConfig.BaseURL
	if err := s.driver.Navigate(ctx, base, s.config.BrowserConfig.NavigationTimeout); err != nil {
		return entity.AuthStateFailed, err
	}

	if err := poll.Sleep(ctx, s.config.TimingConfig.SettleDelay); err != nil {
		return entity.AuthStateFailed, err
	}

	return entity.AuthStateNavigated, nil
}

func (s *AuthService) detectOrEnterCredentials(ctx context.Context, run *loginRun) (entity.AuthState, error) {
	const op = "EnterCredentials"

	if probeSession(ctx, s.driver, originOf(s.config.OracleConfig.BaseURL), run.logger) {
		return entity.AuthStateAlreadyAuthenticated, nil
	}

	creds, err := s.creds.GetCredentials(ctx)
	if err != nil {
		return entity.AuthStateFailed, err
	}

	timing := s.config.TimingConfig

	if entry, ok := clickFirst(ctx, s.driver, chatui.LoginEntryCandidates, timing.ElementTimeout); ok {
		run.logger.Debug("Opened login form", zap.String(logg.Selector, entry))
	} else {
		run.logger.Debug("No login entry control; assuming the form is already shown")
	}

	identityInput, _, err := firstPresent(ctx, s.driver, chatui.IdentityInputCandidates, timing.ElementTimeout)
	if err != nil {
		return entity.AuthStateFailed, s.interactionError(op, "identity_input_missing", err)
	}

	if err := s.driver.Fill(ctx, identityInput, creds.Identity, timing.ElementTimeout); err != nil {
		return entity.AuthStateFailed, s.interactionError(op, "identity_fill_failed", err)
	}

	s.submitForm(ctx, identityInput)

	secretInput, _, err := firstPresent(ctx, s.driver, chatui.SecretInputCandidates, timing.ElementTimeout)
	if err != nil {
		return entity.AuthStateFailed, s.interactionError(op, "secret_input_missing", err)
	}

	if err := s.driver.Type(ctx, secretInput, creds.Secret, timing.TypingDelay, timing.ElementTimeout); err != nil {
		return entity.AuthStateFailed, s.interactionError(op, "secret_type_failed", err)
	}

	if echoed, err := s.driver.InputValue(ctx, secretInput, timing.ShortTimeout); err != nil {
		run.logger.Debug("Could not read back the secret field", zap.Error(err))
	} else if len(echoed) != len(creds.Secret) {
		run.logger.Warn("Secret field length differs from the typed secret",
			zap.Int("typed", len(creds.Secret)),
			zap.Int("echoed", len(echoed)))
	}

	s.submitForm(ctx, secretInput)

	return entity.AuthStateCredentialsEntered, nil
}

// submitForm clicks a continue control, falling back to Enter in field.
func (s *AuthService) submitForm(ctx context.Context, field string) {
	timing := s.config.TimingConfig

	if _, ok := clickFirst(ctx, s.driver, chatui.ContinueCandidates, timing.ShortTimeout); ok {
		return
	}

	if err := s.driver.Press(ctx, field, "Enter", timing.ShortTimeout); err != nil {
		s.logger.Debug("Enter fallback failed", zap.String(logg.Selector, field), zap.Error(err))
	}
}

func (s *AuthService) acceptExistingSession(_ context.Context, run *loginRun) (entity.AuthState, error) {
	run.result.AlreadyLoggedIn = true
	run.logger.Info("Session already authenticated")

	return entity.AuthStateConfirmed, nil
}

func (s *AuthService) awaitVerification(ctx context.Context, run *loginRun) (entity.AuthState, error) {
	timing := s.config.TimingConfig

	err := poll.Within(ctx, timing.VerificationWait, timing.VerificationInterval, func(ctx context.Context) (bool, error) {
		for _, candidate := range chatui.VerificationInputCandidates {
			n, err := s.driver.Count(ctx, candidate)
			if err != nil || n == 0 {
				continue
			}

			run.codeInput, run.codeBoxes = candidate, n

			return true, nil
		}

		if resend, ok := clickVisible(ctx, s.driver, chatui.ResendCodeCandidates, timing.ShortTimeout); ok {
			run.logger.Debug("Requested verification code", zap.String(logg.Selector, resend))
		}

		return false, nil
	})

	switch {
	case err == nil:
		return entity.AuthStateVerificationPending, nil
	case errors.Is(err, poll.ErrDeadline):
		run.logger.Debug("No verification step appeared")

		return entity.AuthStateVerificationSkipped, nil
	default:
		return entity.AuthStateFailed, err
	}
}

func (s *AuthService) submitVerification(ctx context.Context, run *loginRun) (entity.AuthState, error) {
	const op = "SubmitVerification"

	timing := s.config.TimingConfig
	run.result.VerificationAsked = true

	code, err := s.prompter.PromptCode(ctx, verificationPrompt)
	if err != nil {
		return entity.AuthStateFailed, err
	}

	if run.codeBoxes > 1 {
		chars, dropped := DistributeCode(code, run.codeBoxes)
		if dropped > 0 {
			run.logger.Warn("Verification code is longer than the number of boxes",
				zap.Int("boxes", run.codeBoxes),
				zap.Int("dropped", dropped))
		}

		for i, c := range chars {
			if err := s.driver.Fill(ctx, chatui.Nth(run.codeInput, i), c, timing.ElementTimeout); err != nil {
				return entity.AuthStateFailed, s.verificationError(op, "code_box_fill_failed", err)
			}
		}
	} else {
		if err := s.driver.Type(ctx, run.codeInput, code, timing.TypingDelay, timing.ElementTimeout); err != nil {
			return entity.AuthStateFailed, s.verificationError(op, "code_type_failed", err)
		}
	}

	if _, ok := clickFirst(ctx, s.driver, chatui.ConfirmCandidates, timing.ShortTimeout); !ok {
		if err := s.driver.Press(ctx, "", "Enter", timing.ShortTimeout); err != nil {
			return entity.AuthStateFailed, s.verificationError(op, "code_submit_failed", err)
		}
	}

	return s.confirm(ctx, run)
}

// confirm waits for proof of a signed-in session and captures a screenshot
// when none arrives.
func (s *AuthService) confirm(ctx context.Context, run *loginRun) (entity.AuthState, error) {
	const op = "ConfirmLogin"

	timing := s.config.TimingConfig
	origin := originOf(s.config.OracleConfig.BaseURL)

	err := poll.Within(ctx, timing.ConfirmTimeout, timing.ConfirmInterval, func(ctx context.Context) (bool, error) {
		return probeSession(ctx, s.driver, origin, run.logger), nil
	})
	if err == nil {
		return entity.AuthStateConfirmed, nil
	}

	if !errors.Is(err, poll.ErrDeadline) {
		return entity.AuthStateFailed, err
	}

	currentURL := s.driver.CurrentURL()
	path := s.config.ScreenshotPath()
	shot := path

	if shotErr := s.driver.Screenshot(ctx, path); shotErr != nil {
		run.logger.Warn("Could not capture failure screenshot", zap.Error(shotErr))
		shot = "unavailable"
	}

	return entity.AuthStateFailed, apperr.Wrap(op, apperr.CodeLoginNotConfirmed,
		fmt.Errorf("login was not confirmed within %s (url: %s, screenshot: %s)",
			timing.ConfirmTimeout, currentURL, shot),
		map[string]any{
			apperr.MetaStage:      apperr.StageAuth,
			apperr.MetaURL:        currentURL,
			apperr.MetaScreenshot: shot,
			apperr.MetaProfile:    run.profile.Name,
		})
}

func (s *AuthService) persist(ctx context.Context, run *loginRun) error {
	const op = "PersistSession"

	state, err := s.driver.StorageState(ctx)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaStage:   apperr.StageSession,
			apperr.MetaProfile: run.profile.Name,
		})
	}

	return s.store.Save(run.profile, state)
}

// CheckSession verifies that profileName has a saved session that the target
// still accepts, judged by the in-page probe.
func (s *AuthService) CheckSession(ctx context.Context, profileName string) (err error) {
	const op = "CheckSession"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Profile, profileName))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("profile", profileName))
	defer func() {
		step.End(err)
	}()

	profile, err := s.store.Profile(profileName)
	if err != nil {
		return err
	}

	if _, ok := s.store.Load(profile); !ok {
		return s.sessionInvalid(op, profile, errors.New("no saved session"))
	}

	if !s.driver.IsReady() {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := s.driver.Navigate(ctx, s.config.OracleConfig.BaseURL, s.config.BrowserConfig.NavigationTimeout); err != nil {
		return err
	}

	timing := s.config.TimingConfig

	// A restored cookie survives server-side revocation, so only the in-page
	// probe counts.
	err = poll.Within(ctx, timing.SessionCheckTimeout, timing.ConfirmInterval, func(ctx context.Context) (bool, error) {
		return liveSession(ctx, s.driver, logger), nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return s.sessionInvalid(op, profile, errors.New("saved session is no longer accepted"))
	}

	if err != nil {
		return err
	}

	logger.Debug("Session valid")

	return nil
}

func (s *AuthService) sessionInvalid(op string, profile entity.Profile, err error) error {
	return apperr.Wrap(op, apperr.CodeSessionInvalid,
		fmt.Errorf("profile %q: %w", profile.Name, err),
		map[string]any{
			apperr.MetaStage:   apperr.StageSession,
			apperr.MetaProfile: profile.Name,
		})
}

func (s *AuthService) interactionError(op, reason string, err error) error {
	return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
		apperr.MetaReason: reason,
		apperr.MetaStage:  apperr.StageAuth,
	})
}

func (s *AuthService) verificationError(op, reason string, err error) error {
	return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
		apperr.MetaReason: reason,
		apperr.MetaStage:  apperr.StageVerification,
	})
}

// DistributeCode splits code into one character per box, ignoring
// whitespace. Characters beyond the last box are dropped and counted.
func DistributeCode(code string, boxes int) (chars []string, dropped int) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, code)

	runes := []rune(clean)
	if boxes < 0 {
		boxes = 0
	}

	if len(runes) > boxes {
		dropped = len(runes) - boxes
		runes = runes[:boxes]
	}

	chars = make([]string, 0, len(runes))
	for _, r := range runes {
		chars = append(chars, string(r))
	}

	return chars, dropped
}
