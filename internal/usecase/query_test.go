package usecase

import (
	"chat-oracle/internal/chatui"
	"chat-oracle/pkg/apperr"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var lastAssistant = chatui.Last(chatui.AssistantMessage)

func newTestQuery(t *testing.T, driver *fakeDriver, mutate func(c *queryConfig)) *QueryService {
	t.Helper()

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&queryConfig{
			Timeout: &cfg.OracleConfig.Timeout,
			Model:   &cfg.OracleConfig.Model,
			Retries: &cfg.OracleConfig.Retries,
			Floor:   &cfg.TimingConfig.LongRunningFloor,
		})
	}

	return NewQueryService(QueryServiceParams{
		Config: cfg,
		Logger: zap.NewNop(),
		Driver: driver,
		Selector: NewModelSelector(ModelSelectorParams{
			Config: cfg,
			Logger: zap.NewNop(),
			Driver: driver,
		}),
	})
}

type queryConfig struct {
	Timeout *time.Duration
	Model   *string
	Retries *int
	Floor   *time.Duration
}

const never = time.Duration(-1)

// replyPage scripts a conversation holding two assistant messages; a third
// appears arrivesAfter the prompt is submitted.
func replyPage(driver *fakeDriver, pickerLabel string, arrivesAfter time.Duration, reply func() (string, error)) {
	driver.countFn = func(selector string) int {
		switch selector {
		case composer, chatui.ModelPicker:
			return 1
		case chatui.AssistantMessage:
			at := driver.submittedAt()
			if arrivesAfter != never && !at.IsZero() && time.Since(at) >= arrivesAfter {
				return 3
			}

			return 2
		}

		return 0
	}

	driver.textFn = func(selector string) (string, error) {
		switch selector {
		case chatui.ModelPicker:
			return pickerLabel, nil
		case lastAssistant:
			return reply()
		}

		return "", errNoElement
	}
}

func constant(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

// fakeClipboard backs ReadClipboardScript and lets click hooks write to it.
type fakeClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *fakeClipboard) set(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.text = text
}

func (c *fakeClipboard) attach(driver *fakeDriver) {
	driver.evalFn = func(script string) (any, error) {
		if script != chatui.ReadClipboardScript() {
			return nil, nil
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		return c.text, nil
	}
}

func TestSubmit_StabilizesOnRepeatedLength(t *testing.T) {
	driver := newFakeDriver()

	samples := []string{"", "hello", "hello", "hello", "hello wo", "hello wo", "hello wo", "hello wo"}
	var next int
	replyPage(driver, "ChatGPT Auto", 0, func() (string, error) {
		s := samples[min(next, len(samples)-1)]
		next++

		return s, nil
	})

	text, err := newTestQuery(t, driver, nil).Submit(context.Background(), "say hello")
	require.NoError(t, err)

	assert.Equal(t, "hello wo", text)
	assert.Len(t, driver.callsWithPrefix("text:"+lastAssistant), 8)
	assert.Equal(t, []string{"fill:" + composer + "=say hello"}, driver.callsWithPrefix("fill:"))
	assert.Equal(t, []string{"press:" + composer + "=Enter"}, driver.callsWithPrefix("press:"))
}

func TestSubmit_WaitsForArrival(t *testing.T) {
	driver := newFakeDriver()
	arrival := 150 * time.Millisecond

	var firstRead time.Time
	replyPage(driver, "ChatGPT Auto", arrival, func() (string, error) {
		if firstRead.IsZero() {
			firstRead = time.Now()
		}

		return "done", nil
	})

	text, err := newTestQuery(t, driver, nil).Submit(context.Background(), "wait for it")
	require.NoError(t, err)

	assert.Equal(t, "done", text)
	assert.GreaterOrEqual(t, firstRead.Sub(driver.submittedAt()), arrival)
}

func TestSubmit_TimeoutNamesConfiguredDuration(t *testing.T) {
	driver := newFakeDriver()
	replyPage(driver, "ChatGPT Auto", never, constant("unused"))

	q := newTestQuery(t, driver, func(c *queryConfig) {
		*c.Timeout = 300 * time.Millisecond
	})

	start := time.Now()
	_, err := q.Submit(context.Background(), "anyone there?")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeTimeout))
	assert.Contains(t, err.Error(), "timeout 300ms")
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Empty(t, driver.callsWithPrefix("text:"+lastAssistant))
}

func TestSubmit_LongRunningModelUsesFloor(t *testing.T) {
	slow := func(model string) (string, error) {
		driver := newFakeDriver()
		replyPage(driver, "ChatGPT 5 Pro", 150*time.Millisecond, constant("thought hard"))

		q := newTestQuery(t, driver, func(c *queryConfig) {
			*c.Model = model
			*c.Timeout = 50 * time.Millisecond
			*c.Floor = 600 * time.Millisecond
		})

		return q.Submit(context.Background(), "think")
	}

	text, err := slow("gpt-5-pro")
	require.NoError(t, err)
	assert.Equal(t, "thought hard", text)

	_, err = slow("gpt-5-instant")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeTimeout))
}

func TestEffectiveTimeout(t *testing.T) {
	floor := 30 * time.Minute

	assert.Equal(t, floor, EffectiveTimeout("gpt-5-pro", time.Minute, floor))
	assert.Equal(t, floor, EffectiveTimeout("O3 Pro", time.Minute, floor))
	assert.Equal(t, floor, EffectiveTimeout("deep research", time.Minute, floor))
	assert.Equal(t, time.Hour, EffectiveTimeout("gpt-5-pro", time.Hour, floor))
	assert.Equal(t, time.Minute, EffectiveTimeout("gpt-5", time.Minute, floor))
	assert.Equal(t, time.Minute, EffectiveTimeout("gpt-5-thinking", time.Minute, floor))
}

func TestSubmit_CopiesFromMessageControl(t *testing.T) {
	driver := newFakeDriver()
	replyPage(driver, "ChatGPT Auto", 0, constant("fmt.Println(1)"))

	board := &fakeClipboard{}
	board.attach(driver)

	target := chatui.CopyButtonFor("msg-1")
	driver.attrFn = func(selector, name string) (string, error) {
		if selector == lastAssistant && name == chatui.MessageIDAttr {
			return "msg-1", nil
		}

		return "", errNoElement
	}
	driver.clickFn = func(selector string) error {
		if selector == target {
			board.set("```go\nfmt.Println(1)\n```\n")

			return nil
		}

		return errNoElement
	}

	text, err := newTestQuery(t, driver, nil).Submit(context.Background(), "code please")
	require.NoError(t, err)
	assert.Equal(t, "```go\nfmt.Println(1)\n```", text)
	assert.Empty(t, driver.callsWithPrefix("click:"+chatui.Last(chatui.CopyButton)))
}

func TestSubmit_CopyFallsBackToLastControl(t *testing.T) {
	driver := newFakeDriver()
	replyPage(driver, "ChatGPT Auto", 0, constant("rendered"))

	board := &fakeClipboard{}
	board.attach(driver)

	driver.clickFn = func(selector string) error {
		if selector == chatui.Last(chatui.CopyButton) {
			board.set("**markdown** source")

			return nil
		}

		return errNoElement
	}

	text, err := newTestQuery(t, driver, nil).Submit(context.Background(), "format it")
	require.NoError(t, err)
	assert.Equal(t, "**markdown** source", text)
}

func TestSubmit_UnchangedClipboardUsesRenderedText(t *testing.T) {
	driver := newFakeDriver()
	replyPage(driver, "ChatGPT Auto", 0, constant("rendered answer"))

	board := &fakeClipboard{text: "stale"}
	board.attach(driver)

	driver.clickFn = func(string) error { return nil }

	text, err := newTestQuery(t, driver, nil).Submit(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "rendered answer", text)
}

func TestSubmit_EmptyPrompt(t *testing.T) {
	driver := newFakeDriver()

	_, err := newTestQuery(t, driver, nil).Submit(context.Background(), "  \n ")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidArgument))
	assert.Empty(t, driver.callsWithPrefix("fill:"))
}

func TestSubmit_NoComposer(t *testing.T) {
	driver := newFakeDriver()

	_, err := newTestQuery(t, driver, nil).Submit(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeActionFailed))
}

func TestAsk_RetriesFromFreshConversation(t *testing.T) {
	run := func(retries int) (*fakeDriver, string, error) {
		driver := newFakeDriver()
		replyPage(driver, "ChatGPT Auto", never, constant("second time lucky"))

		var (
			mu    sync.Mutex
			navAt time.Time
		)

		driver.navFn = func(string) error {
			mu.Lock()
			defer mu.Unlock()

			navAt = time.Now()

			return nil
		}

		base := driver.countFn
		driver.countFn = func(selector string) int {
			if selector != chatui.AssistantMessage {
				return base(selector)
			}

			mu.Lock()
			defer mu.Unlock()

			if !navAt.IsZero() && driver.submittedAt().After(navAt) {
				return 3
			}

			return 2
		}

		q := newTestQuery(t, driver, func(c *queryConfig) {
			*c.Timeout = 100 * time.Millisecond
			*c.Retries = retries
		})

		text, err := q.Ask(context.Background(), "flaky")

		return driver, text, err
	}

	driver, text, err := run(1)
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", text)
	assert.Len(t, driver.callsWithPrefix("navigate:"), 1)

	driver, _, err = run(0)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeTimeout))
	assert.Empty(t, driver.callsWithPrefix("navigate:"))
}

func TestAsk_DoesNotRetryInvalidPrompt(t *testing.T) {
	driver := newFakeDriver()

	_, err := newTestQuery(t, driver, func(c *queryConfig) { *c.Retries = 3 }).Ask(context.Background(), "")
	require.Error(t, err)
	assert.Empty(t, driver.callsWithPrefix("navigate:"))
}

func TestSubmit_VisibleBrowserFallsBackToSystemClipboard(t *testing.T) {
	driver := newFakeDriver()
	replyPage(driver, "ChatGPT Auto", 0, constant("rendered"))

	board := &fakeClipboard{}
	driver.clickFn = func(selector string) error {
		if selector == chatui.Last(chatui.CopyButton) {
			board.set("# Title\n\nsource text")

			return nil
		}

		return errNoElement
	}

	q := newTestQuery(t, driver, nil)
	q.config.BrowserConfig.Headless = false
	q.systemClipboard = func() (string, error) {
		board.mu.Lock()
		defer board.mu.Unlock()

		return board.text, nil
	}

	text, err := q.Submit(context.Background(), "markdown please")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nsource text", text)
}
