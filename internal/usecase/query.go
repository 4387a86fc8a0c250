package usecase

import (
	"chat-oracle/internal/chatui"
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"chat-oracle/internal/models"
	"chat-oracle/internal/ports"
	"chat-oracle/internal/usecase/adapters"
	"chat-oracle/pkg/apperr"
	"chat-oracle/pkg/logg"
	"chat-oracle/pkg/poll"
	"chat-oracle/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	queryServiceName = "QueryService"
	queryTracer      = "usecase.query"
)

type QueryService struct {
	config *config.Config
	logger *zap.Logger
	tracer trace.Tracer
	driver ports.Driver
	models adapters.ModelService

	// systemClipboard reads the OS clipboard, which a visible browser
	// writes to when the page itself may not read it back.
	systemClipboard func() (string, error)
}

type QueryServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Driver   ports.Driver
	Selector adapters.ModelService
}

func NewQueryService(params QueryServiceParams) *QueryService {
	return &QueryService{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, queryServiceName)),
		tracer: otel.Tracer(queryTracer),
		driver: params.Driver,
		models: params.Selector,

		systemClipboard: readSystemClipboard,
	}
}

// EffectiveTimeout raises timeout to floor for long-running models.
func EffectiveTimeout(model string, timeout, floor time.Duration) time.Duration {
	if models.IsLongRunning(model) && floor > timeout {
		return floor
	}

	return timeout
}

// Ask submits prompt and retries retryable failures up to the configured
// number of times, starting each retry from a fresh conversation.
func (s *QueryService) Ask(ctx context.Context, prompt string) (string, error) {
	const op = "Ask"
	logger := s.logger.With(zap.String(logg.Operation, op))

	retries := s.config.OracleConfig.Retries

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying query",
				zap.Int(logg.Attempt, attempt),
				zap.Error(lastErr))

			if err := s.driver.Navigate(ctx, s.config.OracleConfig.BaseURL, s.config.BrowserConfig.NavigationTimeout); err != nil {
				return "", err
			}

			if err := poll.Sleep(ctx, s.config.TimingConfig.SettleDelay); err != nil {
				return "", err
			}
		}

		text, err := s.Submit(ctx, prompt)
		if err == nil {
			return text, nil
		}

		if ctx.Err() != nil || !retryable(err) {
			return "", err
		}

		lastErr = err
	}

	return "", lastErr
}

func retryable(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeTimeout, apperr.CodeEmptyResponse, apperr.CodeActionFailed:
		return true
	}

	return false
}

// Submit sends prompt in the current conversation and returns the completed
// assistant reply.
func (s *QueryService) Submit(ctx context.Context, prompt string) (text string, err error) {
	const op = "Submit"

	model := s.config.OracleConfig.Model
	state := &entity.QueryState{
		ID:      uuid.New(),
		Model:   model,
		Timeout: EffectiveTimeout(model, s.config.OracleConfig.Timeout, s.config.TimingConfig.LongRunningFloor),
	}

	logger := s.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.QueryID, state.ID.String()),
		zap.String(logg.Model, model),
	)

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("model", model),
		attribute.Int("prompt_len", len(prompt)))
	defer func() {
		step.End(err)
	}()

	if strings.TrimSpace(prompt) == "" {
		return "", apperr.InvalidReqError(op, "prompt", errors.New("prompt is empty"))
	}

	if !s.driver.IsReady() {
		return "", apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	step.AddEvent(string(entity.QueryPhaseSelectModel))
	if err := s.models.Select(ctx, model); err != nil {
		return "", err
	}

	step.AddEvent(string(entity.QueryPhaseSubmit))
	if err := s.send(ctx, state, prompt); err != nil {
		return "", err
	}

	logger.Debug("Prompt submitted",
		zap.Int("baseline", state.Baseline),
		zap.Duration("timeout", state.Timeout))

	step.AddEvent(string(entity.QueryPhaseArrival))
	if err := s.awaitArrival(ctx, state); err != nil {
		return "", err
	}

	step.AddEvent(string(entity.QueryPhaseStabilize))
	if err := s.awaitStable(ctx, state); err != nil {
		return "", err
	}

	step.AddEvent(string(entity.QueryPhaseExtract))
	state.ExtractedText = s.copyResponse(ctx, state, logger)

	text = state.ExtractedText
	if text == "" {
		text = state.RenderedText
	}

	if strings.TrimSpace(text) == "" {
		return "", apperr.Wrap(op, apperr.CodeEmptyResponse, errors.New("assistant reply is empty"), map[string]any{
			apperr.MetaStage: apperr.StageExtraction,
			apperr.MetaModel: model,
		})
	}

	step.AddEvent(string(entity.QueryPhaseDone))
	logger.Debug("Response captured",
		zap.Int("length", len(text)),
		zap.Bool("copied", state.ExtractedText != ""),
		zap.Duration(logg.Elapsed, time.Since(state.StartedAt)))

	return text, nil
}

// send types prompt into the composer and presses Enter. The deadline clock
// starts at submission.
func (s *QueryService) send(ctx context.Context, state *entity.QueryState, prompt string) error {
	const op = "SendPrompt"

	timing := s.config.TimingConfig

	composer, _, err := firstPresent(ctx, s.driver, chatui.ComposerCandidates, timing.ElementTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("prompt input not found: %w", err), map[string]any{
			apperr.MetaStage: apperr.StageQuery,
		})
	}

	baseline, err := s.driver.Count(ctx, chatui.AssistantMessage)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaStage:    apperr.StageQuery,
			apperr.MetaSelector: chatui.AssistantMessage,
		})
	}

	state.Baseline = baseline

	if err := s.driver.Fill(ctx, composer, prompt, timing.ElementTimeout); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: composer,
		})
	}

	if err := poll.Sleep(ctx, timing.SubmitSettleDelay); err != nil {
		return err
	}

	if err := s.driver.Press(ctx, composer, "Enter", timing.ElementTimeout); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: composer,
		})
	}

	state.StartedAt = time.Now()
	state.Deadline = state.StartedAt.Add(state.Timeout)

	return nil
}

func (s *QueryService) awaitArrival(ctx context.Context, state *entity.QueryState) error {
	const op = "AwaitArrival"

	err := poll.Until(ctx, state.Deadline, s.config.TimingConfig.PollInterval, func(ctx context.Context) (bool, error) {
		n, err := s.driver.Count(ctx, chatui.AssistantMessage)
		if err != nil {
			return false, nil
		}

		return n > state.Baseline, nil
	})

	return s.deadlineError(op, state, "no assistant response arrived", err)
}

func (s *QueryService) awaitStable(ctx context.Context, state *entity.QueryState) error {
	const op = "AwaitStable"

	timing := s.config.TimingConfig
	tracker := poll.NewStability(timing.StableThreshold)
	last := chatui.Last(chatui.AssistantMessage)

	err := poll.Until(ctx, state.Deadline, timing.PollInterval, func(ctx context.Context) (bool, error) {
		text, err := s.driver.InnerText(ctx, last, timing.ShortTimeout)
		if err != nil {
			text = ""
		}

		stable := tracker.Observe(strings.TrimSpace(text))
		state.LastLength = tracker.LastLen()
		state.StableCount = tracker.Count()

		return stable, nil
	})

	state.RenderedText = tracker.Text()

	return s.deadlineError(op, state, "assistant response did not finish", err)
}

func (s *QueryService) deadlineError(op string, state *entity.QueryState, what string, err error) error {
	if err == nil || !errors.Is(err, poll.ErrDeadline) {
		return err
	}

	elapsed := time.Since(state.StartedAt).Round(time.Millisecond)

	return apperr.Wrap(op, apperr.CodeTimeout,
		fmt.Errorf("%s after %s (timeout %s)", what, elapsed, state.Timeout),
		map[string]any{
			apperr.MetaStage:    apperr.StageQuery,
			apperr.MetaModel:    state.Model,
			apperr.MetaElapsed:  elapsed,
			apperr.MetaDeadline: state.Timeout,
		})
}

// copyResponse uses the reply's copy control and reads the clipboard. It
// returns "" when no fresh clipboard content shows up in time.
func (s *QueryService) copyResponse(ctx context.Context, state *entity.QueryState, logger *zap.Logger) string {
	timing := s.config.TimingConfig
	last := chatui.Last(chatui.AssistantMessage)

	if id, err := s.driver.Attribute(ctx, last, chatui.MessageIDAttr, timing.ShortTimeout); err == nil {
		state.MessageID = strings.TrimSpace(id)
	}

	before := s.readClipboard(ctx)

	clicked := false
	if state.MessageID != "" {
		clicked = s.driver.Click(ctx, chatui.CopyButtonFor(state.MessageID), timing.ShortTimeout) == nil
	}

	if !clicked {
		clicked = s.driver.Click(ctx, chatui.Last(chatui.CopyButton), timing.ShortTimeout) == nil
	}

	if !clicked {
		logger.Debug("No copy control; using rendered text")

		return ""
	}

	var copied string

	err := poll.Within(ctx, timing.CopyWindow, timing.CopyInterval, func(ctx context.Context) (bool, error) {
		v := s.readClipboard(ctx)
		if strings.TrimSpace(v) == "" || v == before {
			return false, nil
		}

		copied = v

		return true, nil
	})
	if err != nil {
		logger.Debug("Clipboard did not change; using rendered text", zap.Error(err))

		return ""
	}

	return strings.TrimSpace(copied)
}

func (s *QueryService) readClipboard(ctx context.Context) string {
	var text string
	if v, err := s.driver.EvaluateJS(ctx, chatui.ReadClipboardScript(), nil); err == nil {
		text, _ = v.(string)
	}

	if text != "" || s.config.BrowserConfig.Headless || s.systemClipboard == nil {
		return text
	}

	text, err := s.systemClipboard()
	if err != nil {
		return ""
	}

	return text
}

func readSystemClipboard() (string, error) {
	if clipboard.Unsupported {
		return "", errors.New("no system clipboard utility available")
	}

	return clipboard.ReadAll()
}
