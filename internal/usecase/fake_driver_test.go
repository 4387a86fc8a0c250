package usecase

import (
	"chat-oracle/internal/config"
	"chat-oracle/internal/entity"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

var errNoElement = errors.New("element not found")

// fakeDriver is a scripted ports.Driver. Unset hooks behave like an empty
// page: nothing is present and every interaction fails fast.
type fakeDriver struct {
	mu sync.Mutex

	countFn   func(selector string) int
	visibleFn func(selector string) bool
	textFn    func(selector string) (string, error)
	inputFn   func(selector string) (string, error)
	attrFn    func(selector, name string) (string, error)
	clickFn   func(selector string) error
	evalFn    func(script string) (any, error)
	cookiesFn func() []entity.Cookie
	navFn     func(url string) error

	values      map[string]string
	calls       []string
	screenshots []string
	pressedAt   time.Time
	navigations int
	url         string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{values: map[string]string{}, url: "https://chat.example.test/"}
}

func (f *fakeDriver) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeDriver) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}

	return out
}

func (f *fakeDriver) Launch(context.Context, *entity.SessionState) error { return nil }

func (f *fakeDriver) Close(context.Context) error { return nil }

func (f *fakeDriver) IsReady() bool { return true }

func (f *fakeDriver) Navigate(_ context.Context, url string, _ time.Duration) error {
	f.record("navigate:%s", url)

	f.mu.Lock()
	f.navigations++
	f.mu.Unlock()

	if f.navFn != nil {
		return f.navFn(url)
	}

	return nil
}

func (f *fakeDriver) CurrentURL() string { return f.url }

func (f *fakeDriver) Count(_ context.Context, selector string) (int, error) {
	if f.countFn == nil {
		return 0, nil
	}

	return f.countFn(selector), nil
}

func (f *fakeDriver) IsVisible(ctx context.Context, selector string) bool {
	if f.visibleFn != nil {
		return f.visibleFn(selector)
	}

	n, _ := f.Count(ctx, selector)

	return n > 0
}

func (f *fakeDriver) WaitForSelector(ctx context.Context, selector string, _ time.Duration) error {
	if n, _ := f.Count(ctx, selector); n > 0 {
		return nil
	}

	return errNoElement
}

func (f *fakeDriver) Click(ctx context.Context, selector string, _ time.Duration) error {
	f.record("click:%s", selector)

	if f.clickFn != nil {
		return f.clickFn(selector)
	}

	if n, _ := f.Count(ctx, selector); n > 0 {
		return nil
	}

	return errNoElement
}

func (f *fakeDriver) Fill(_ context.Context, selector, value string, _ time.Duration) error {
	f.record("fill:%s=%s", selector, value)

	f.mu.Lock()
	f.values[selector] = value
	f.mu.Unlock()

	return nil
}

func (f *fakeDriver) Type(_ context.Context, selector, text string, _, _ time.Duration) error {
	f.record("type:%s=%s", selector, text)

	f.mu.Lock()
	f.values[selector] = text
	f.mu.Unlock()

	return nil
}

func (f *fakeDriver) Press(_ context.Context, selector, key string, _ time.Duration) error {
	f.record("press:%s=%s", selector, key)

	if key == "Enter" {
		f.mu.Lock()
		f.pressedAt = time.Now()
		f.mu.Unlock()
	}

	return nil
}

func (f *fakeDriver) submittedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pressedAt
}

func (f *fakeDriver) value(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.values[selector]
}

func (f *fakeDriver) InputValue(_ context.Context, selector string, _ time.Duration) (string, error) {
	if f.inputFn != nil {
		return f.inputFn(selector)
	}

	return f.value(selector), nil
}

func (f *fakeDriver) InnerText(_ context.Context, selector string, _ time.Duration) (string, error) {
	f.record("text:%s", selector)

	if f.textFn == nil {
		return "", errNoElement
	}

	return f.textFn(selector)
}

func (f *fakeDriver) Attribute(_ context.Context, selector, name string, _ time.Duration) (string, error) {
	if f.attrFn == nil {
		return "", errNoElement
	}

	return f.attrFn(selector, name)
}

func (f *fakeDriver) EvaluateJS(_ context.Context, script string, _ any) (any, error) {
	if f.evalFn == nil {
		return nil, nil
	}

	return f.evalFn(script)
}

func (f *fakeDriver) Screenshot(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.screenshots = append(f.screenshots, path)

	return nil
}

func (f *fakeDriver) Cookies(context.Context, string) ([]entity.Cookie, error) {
	if f.cookiesFn == nil {
		return nil, nil
	}

	return f.cookiesFn(), nil
}

func (f *fakeDriver) StorageState(context.Context) (*entity.SessionState, error) {
	raw, _ := json.Marshal(map[string]any{
		"cookies": []map[string]string{{"name": "__Secure-next-auth.session-token", "value": "tok"}},
		"origins": []any{},
	})

	return &entity.SessionState{Raw: raw, SavedAt: time.Now()}, nil
}

func counts(m map[string]int) func(string) int {
	return func(selector string) int {
		return m[selector]
	}
}

// testConfig returns a configuration with every delay scaled down to
// milliseconds.
func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{LogLevel: "debug", ConfigDir: t.TempDir()},
		BrowserConfig: &config.BrowserConfig{
			Headless:          true,
			NavigationTimeout: time.Second,
		},
		OracleConfig: &config.OracleConfig{
			BaseURL:        "https://chat.example.test/",
			Profile:        "default",
			Model:          "gpt-5",
			Timeout:        2 * time.Second,
			ScreenshotPath: t.TempDir() + "/failure.png",
		},
		TimingConfig: &config.TimingConfig{
			PollInterval:         5 * time.Millisecond,
			StableThreshold:      3,
			LongRunningFloor:     30 * time.Minute,
			SettleDelay:          time.Millisecond,
			SubmitSettleDelay:    time.Millisecond,
			TypingDelay:          0,
			ElementTimeout:       50 * time.Millisecond,
			ShortTimeout:         10 * time.Millisecond,
			VerificationWait:     50 * time.Millisecond,
			VerificationInterval: 5 * time.Millisecond,
			ConfirmTimeout:       100 * time.Millisecond,
			ConfirmInterval:      5 * time.Millisecond,
			SessionCheckTimeout:  50 * time.Millisecond,
			ComposerTimeout:      10 * time.Millisecond,
			MenuTimeout:          10 * time.Millisecond,
			CopyWindow:           40 * time.Millisecond,
			CopyInterval:         5 * time.Millisecond,
			ModelConfirmSettle:   time.Millisecond,
		},
	}
}
