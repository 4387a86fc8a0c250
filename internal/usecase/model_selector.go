package usecase

import (
	"chat-oracle/internal/chatui"
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"chat-oracle/internal/models"
	"chat-oracle/internal/ports"
	"chat-oracle/pkg/logg"
	"chat-oracle/pkg/poll"
	"chat-oracle/pkg/tracing"
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	modelSelectorName = "ModelSelector"
	modelTracer       = "usecase.model"
)

// ModelSelector switches the chat UI to a catalog model. Every failure is
// logged and swallowed: a query still runs on whatever model is active.
type ModelSelector struct {
	config *config.Config
	logger *zap.Logger
	tracer trace.Tracer
	driver ports.Driver
}

type ModelSelectorParams struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
	Driver ports.Driver
}

func NewModelSelector(params ModelSelectorParams) *ModelSelector {
	return &ModelSelector{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, modelSelectorName)),
		tracer: otel.Tracer(modelTracer),
		driver: params.Driver,
	}
}

// Select makes name the active model. It only returns an error when ctx is
// done.
func (m *ModelSelector) Select(ctx context.Context, name string) (err error) {
	const op = "SelectModel"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Model, name))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op,
		attribute.String("model", name))
	defer func() {
		step.End(err)
	}()

	def, ok := models.Resolve(name)
	if !ok {
		logger.Warn("Unknown model; keeping the current one",
			zap.Strings("known", models.Keys()))

		return nil
	}

	timing := m.config.TimingConfig

	if label, active := m.isActive(ctx, def); active {
		logger.Debug("Model already active", zap.String("label", label))

		return nil
	}

	if _, err := firstAttached(ctx, m.driver, chatui.ComposerCandidates, timing.ComposerTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("Prompt input not found; skipping model selection", zap.Error(err))

		return nil
	}

	if err := m.driver.Click(ctx, chatui.ModelPicker, timing.MenuTimeout); err != nil {
		logger.Warn("Model picker not found", zap.Error(err))

		return ctx.Err()
	}

	if err := m.driver.WaitForSelector(ctx, chatui.ModelMenu, timing.MenuTimeout); err != nil {
		logger.Warn("Model menu did not open", zap.Error(err))

		return ctx.Err()
	}

	for _, pre := range def.Preconditions {
		if err := m.driver.Click(ctx, pre.Selector, timing.ShortTimeout); err != nil {
			logger.Debug("Precondition step failed",
				zap.String("step", pre.Name),
				zap.Error(err))
		}
	}

	option, picked := m.pickOption(ctx, def)
	if !picked {
		logger.Warn("No menu option matched the model; closing the menu")

		if err := m.driver.Press(ctx, "", "Escape", timing.ShortTimeout); err != nil {
			logger.Debug("Escape failed", zap.Error(err))
		}

		return ctx.Err()
	}

	logger.Debug("Model option clicked", zap.String(logg.Selector, option))

	if err := poll.Sleep(ctx, timing.ModelConfirmSettle); err != nil {
		return err
	}

	if label, active := m.isActive(ctx, def); active {
		logger.Info("Model switched", zap.String("label", label))
	} else {
		logger.Warn("Could not confirm the model switch", zap.String("label", label))
	}

	return nil
}

// pickOption clicks the first target id, then the first fallback label, that
// accepts a click.
func (m *ModelSelector) pickOption(ctx context.Context, def entity.ModelDefinition) (string, bool) {
	timing := m.config.TimingConfig

	candidates := make([]string, 0, len(def.TargetIDs)+len(def.FallbackLabels))
	for _, id := range def.TargetIDs {
		candidates = append(candidates, chatui.ModelOption(id))
	}

	for _, label := range def.FallbackLabels {
		candidates = append(candidates, chatui.MenuItemWithText(label))
	}

	for _, candidate := range candidates {
		if err := m.driver.Click(ctx, candidate, timing.ShortTimeout); err == nil {
			return candidate, true
		}

		if ctx.Err() != nil {
			return "", false
		}
	}

	return "", false
}

// isActive reads the picker label and matches it against def.
func (m *ModelSelector) isActive(ctx context.Context, def entity.ModelDefinition) (string, bool) {
	timing := m.config.TimingConfig

	label, err := m.driver.InnerText(ctx, chatui.ModelPicker, timing.ShortTimeout)
	if err != nil || strings.TrimSpace(label) == "" {
		label, _ = m.driver.Attribute(ctx, chatui.ModelPicker, "aria-label", timing.ShortTimeout)
	}

	label = strings.TrimSpace(label)

	return label, models.IsSelected(label, def)
}
