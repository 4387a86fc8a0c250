package browser

import (
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"chat-oracle/pkg/apperr"
	"chat-oracle/pkg/logg"
	"chat-oracle/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	retryDelay         = 400 * time.Millisecond
)

var clipboardPermissions = []string{"clipboard-read", "clipboard-write"}

// Manager owns one browser process, one context and one page.
type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page
	ready          bool
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
		ready:  false,
	}
}

// Launch starts the browser and restores state when given. On failure every
// resource acquired so far is released before returning.
func (m *Manager) Launch(ctx context.Context, state *entity.SessionState) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op,
		attribute.Bool("headless", m.config.BrowserConfig.Headless),
		attribute.Bool("restored_state", state != nil))
	defer func() {
		if err != nil {
			_ = m.release(logger)
		}

		step.End(err)
	}()

	if m.config.BrowserConfig.AutoInstall {
		step.AddEvent("installing playwright")

		if err = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return apperr.Wrap(op, apperr.CodeLaunchFailed, err, map[string]any{
				apperr.MetaReason: "playwright_install_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeLaunchFailed, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	browserOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		Args:     m.config.BrowserConfig.Args,
	}

	if m.config.BrowserConfig.SlowMo > 0 {
		browserOptions.SlowMo = playwright.Float(float64(m.config.BrowserConfig.SlowMo))
	}

	browser, err := pw.Chromium.Launch(browserOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeLaunchFailed, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	contextOptions, err := m.contextOptions(state)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeLaunchFailed, err, map[string]any{
			apperr.MetaReason: "storage_state_invalid",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeLaunchFailed, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeLaunchFailed, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.page = page

	m.ready = true
	logger.Debug("Browser launched", zap.Bool("restored_state", state != nil))

	return nil
}

func (m *Manager) contextOptions(state *entity.SessionState) (playwright.BrowserNewContextOptions, error) {
	bc := m.config.BrowserConfig

	options := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  bc.ViewportWidth,
			Height: bc.ViewportHeight,
		},
		UserAgent:         playwright.String(bc.UserAgent),
		Locale:            playwright.String(bc.Locale),
		JavaScriptEnabled: playwright.Bool(true),
		Permissions:       clipboardPermissions,
	}

	if state != nil && len(state.Raw) > 0 {
		var storage playwright.OptionalStorageState
		if err := json.Unmarshal(state.Raw, &storage); err != nil {
			return options, fmt.Errorf("decode storage state: %w", err)
		}

		options.StorageState = &storage
	}

	return options, nil
}

// Close releases the page, context, browser and driver process. It is safe to
// call on a partially launched or already closed manager.
func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := m.release(logger); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_stop_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	logger.Debug("Browser closed")

	return nil
}

func (m *Manager) release(logger *zap.Logger) error {
	m.ready = false

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
		m.browserContext = nil
		m.page = nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
		m.browser = nil
	}

	if m.playwright != nil {
		pw := m.playwright
		m.playwright = nil

		return pw.Stop()
	}

	return nil
}

func (m *Manager) IsReady() bool {
	return m.ready
}

func (m *Manager) CurrentURL() string {
	if m.page == nil || m.page.IsClosed() {
		return ""
	}

	return m.page.URL()
}

func (m *Manager) ensurePageActive() error {
	if !m.ready {
		return errors.New("browser is not launched")
	}

	if m.browserContext == nil {
		return errors.New("browser context is nil")
	}

	if m.page != nil && !m.page.IsClosed() {
		return nil
	}

	m.logger.Info("Page closed, reconnecting to active page...")

	for _, p := range m.browserContext.Pages() {
		if !p.IsClosed() {
			m.page = p

			return nil
		}
	}

	page, err := m.browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}

	m.page = page

	return nil
}

func (m *Manager) notReady(op string, err error) error {
	return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
		apperr.MetaReason: "page_not_active",
		apperr.MetaStage:  apperr.StageBrowser,
	})
}

func (m *Manager) Navigate(ctx context.Context, url string, timeout time.Duration) (err error) {
	const op = "Navigate"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	if timeout <= 0 {
		timeout = m.config.BrowserConfig.NavigationTimeout
	}

	step.AddEvent("navigating to URL")

	_, err = m.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(millis(timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	step.AddEvent("navigation completed")

	return nil
}

func (m *Manager) Count(ctx context.Context, selector string) (int, error) {
	const op = "Count"

	if err := m.ensurePageActive(); err != nil {
		return 0, m.notReady(op, err)
	}

	n, err := m.page.Locator(selector).Count()
	if err != nil {
		return 0, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "count_failed",
			apperr.MetaSelector: selector,
		})
	}

	return n, nil
}

func (m *Manager) IsVisible(ctx context.Context, selector string) bool {
	if err := m.ensurePageActive(); err != nil {
		return false
	}

	visible, err := m.page.Locator(selector).First().IsVisible()
	if err != nil {
		return false
	}

	return visible
}

func (m *Manager) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (err error) {
	const op = "WaitForSelector"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	err = m.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeTimeout, err, map[string]any{
			apperr.MetaReason:   "wait_selector_timeout",
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

// Click tries a regular click first and a forced click second.
func (m *Manager) Click(ctx context.Context, selector string, timeout time.Duration) (err error) {
	const op = "Click"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	locator := m.page.Locator(selector).First()

	strategies := []struct {
		name string
		fn   func() error
	}{
		{
			name: "locator_click",
			fn: func() error {
				return locator.Click(playwright.LocatorClickOptions{
					Timeout: playwright.Float(millis(timeout)),
				})
			},
		},
		{
			name: "force_click",
			fn: func() error {
				return locator.Click(playwright.LocatorClickOptions{
					Timeout: playwright.Float(millis(timeout)),
					Force:   playwright.Bool(true),
				})
			},
		},
	}

	var lastErr error
	for attempt, strategy := range strategies {
		if attempt > 0 {
			// Nothing to force-click if the element never appeared.
			if n, countErr := m.page.Locator(selector).Count(); countErr != nil || n == 0 {
				break
			}

			time.Sleep(retryDelay)
		}

		step.AddEvent(fmt.Sprintf("trying strategy: %s", strategy.name))

		if lastErr = strategy.fn(); lastErr == nil {
			return nil
		}

		logger.Debug("Click strategy failed", zap.String("strategy", strategy.name), zap.Error(lastErr))
	}

	return apperr.Wrap(op, apperr.CodeActionFailed, lastErr, map[string]any{
		apperr.MetaReason:   "click_failed_all_strategies",
		apperr.MetaStage:    apperr.StageInteraction,
		apperr.MetaSelector: selector,
	})
}

func (m *Manager) Fill(ctx context.Context, selector, value string, timeout time.Duration) (err error) {
	const op = "Fill"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	err = m.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "fill_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

// Type sends one key event per character with delay between them.
func (m *Manager) Type(ctx context.Context, selector, text string, delay, timeout time.Duration) (err error) {
	const op = "Type"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op,
		attribute.String("selector", selector),
		attribute.Int("length", len(text)))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	err = m.page.Locator(selector).First().Type(text, playwright.LocatorTypeOptions{
		Delay:   playwright.Float(millis(delay)),
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "type_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

// Press sends key to selector, or to the page keyboard when selector is empty.
func (m *Manager) Press(ctx context.Context, selector, key string, timeout time.Duration) (err error) {
	const op = "Press"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op,
		attribute.String("key", key),
		attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	if selector == "" {
		err = m.page.Keyboard().Press(key)
	} else {
		err = m.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{
			Timeout: playwright.Float(millis(timeout)),
		})
	}

	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "press_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (m *Manager) InputValue(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	const op = "InputValue"

	if err := m.ensurePageActive(); err != nil {
		return "", m.notReady(op, err)
	}

	value, err := m.page.Locator(selector).First().InputValue(playwright.LocatorInputValueOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "input_value_failed",
			apperr.MetaSelector: selector,
		})
	}

	return value, nil
}

func (m *Manager) InnerText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	const op = "InnerText"

	if err := m.ensurePageActive(); err != nil {
		return "", m.notReady(op, err)
	}

	text, err := m.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeNotFound, err, map[string]any{
			apperr.MetaReason:   "inner_text_failed",
			apperr.MetaSelector: selector,
		})
	}

	return text, nil
}

func (m *Manager) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	const op = "Attribute"

	if err := m.ensurePageActive(); err != nil {
		return "", m.notReady(op, err)
	}

	value, err := m.page.Locator(selector).First().GetAttribute(name, playwright.LocatorGetAttributeOptions{
		Timeout: playwright.Float(millis(timeout)),
	})
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeNotFound, err, map[string]any{
			apperr.MetaReason:   "get_attribute_failed",
			apperr.MetaSelector: selector,
		})
	}

	return value, nil
}

func (m *Manager) EvaluateJS(ctx context.Context, script string, arg any) (result any, err error) {
	const op = "EvaluateJS"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return nil, m.notReady(op, err)
	}

	if arg != nil {
		result, err = m.page.Evaluate(script, arg)
	} else {
		result, err = m.page.Evaluate(script)
	}

	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "evaluate_failed",
		})
	}

	return result, nil
}

func (m *Manager) Screenshot(ctx context.Context, path string) (err error) {
	const op = "Screenshot"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("path", path))
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return m.notReady(op, err)
	}

	_, err = m.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	return nil
}

// Cookies lists the context cookies that would be sent to origin.
func (m *Manager) Cookies(ctx context.Context, origin string) ([]entity.Cookie, error) {
	const op = "Cookies"

	if err := m.ensurePageActive(); err != nil {
		return nil, m.notReady(op, err)
	}

	pwCookies, err := m.browserContext.Cookies(origin)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "cookies_failed",
			apperr.MetaURL:    origin,
		})
	}

	cookies := make([]entity.Cookie, 0, len(pwCookies))
	for _, c := range pwCookies {
		cookies = append(cookies, entity.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
		})
	}

	return cookies, nil
}

// StorageState serializes cookies and origin storage of the current context.
func (m *Manager) StorageState(ctx context.Context) (state *entity.SessionState, err error) {
	const op = "StorageState"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := m.ensurePageActive(); err != nil {
		return nil, m.notReady(op, err)
	}

	storage, err := m.browserContext.StorageState()
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "storage_state_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	raw, err := json.Marshal(storage)
	if err != nil {
		return nil, apperr.WrapWithReason(op, apperr.CodeInternal, err, "storage_state_encode_failed")
	}

	return &entity.SessionState{Raw: raw, SavedAt: time.Now()}, nil
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
