package usecase

import (
	"chat-oracle/internal/chatui"
	"chat-oracle/internal/ports"
	"chat-oracle/pkg/poll"
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const presenceInterval = 250 * time.Millisecond

// firstPresent polls all candidates until one matches at least one element.
// It returns the matching selector and its element count.
func firstPresent(ctx context.Context, driver ports.Driver, candidates []string, timeout time.Duration) (string, int, error) {
	var (
		found string
		count int
	)

	err := poll.Within(ctx, timeout, presenceInterval, func(ctx context.Context) (bool, error) {
		for _, candidate := range candidates {
			n, err := driver.Count(ctx, candidate)
			if err != nil || n == 0 {
				continue
			}

			found, count = candidate, n

			return true, nil
		}

		return false, nil
	})

	return found, count, err
}

// firstAttached waits for each candidate in order with a per-attempt timeout.
func firstAttached(ctx context.Context, driver ports.Driver, candidates []string, perAttempt time.Duration) (string, error) {
	var lastErr error

	for _, candidate := range candidates {
		if err := driver.WaitForSelector(ctx, candidate, perAttempt); err != nil {
			lastErr = err

			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			continue
		}

		return candidate, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no candidates")
	}

	return "", lastErr
}

// clickFirst clicks the first candidate that is present and accepts the click.
func clickFirst(ctx context.Context, driver ports.Driver, candidates []string, timeout time.Duration) (string, bool) {
	for _, candidate := range candidates {
		n, err := driver.Count(ctx, candidate)
		if err != nil || n == 0 {
			continue
		}

		if err := driver.Click(ctx, candidate, timeout); err == nil {
			return candidate, true
		}
	}

	return "", false
}

// clickVisible clicks the first visible candidate.
func clickVisible(ctx context.Context, driver ports.Driver, candidates []string, timeout time.Duration) (string, bool) {
	for _, candidate := range candidates {
		if !driver.IsVisible(ctx, candidate) {
			continue
		}

		if err := driver.Click(ctx, candidate, timeout); err == nil {
			return candidate, true
		}
	}

	return "", false
}

// probeSession combines the cookie allow-list and the in-page session check.
// Either signal is sufficient.
func probeSession(ctx context.Context, driver ports.Driver, origin string, logger *zap.Logger) bool {
	cookies, err := driver.Cookies(ctx, origin)
	if err != nil {
		logger.Debug("Cookie probe failed", zap.Error(err))
	}

	for _, c := range cookies {
		if slices.Contains(chatui.SessionCookies, c.Name) && c.Value != "" {
			return true
		}
	}

	return liveSession(ctx, driver, logger)
}

// liveSession asks the page itself whether a user is signed in. Unlike a
// stored cookie it reflects server-side revocation.
func liveSession(ctx context.Context, driver ports.Driver, logger *zap.Logger) bool {
	result, err := driver.EvaluateJS(ctx, chatui.SessionProbeScript(), nil)
	if err != nil {
		logger.Debug("In-page session probe failed", zap.Error(err))

		return false
	}

	ok, _ := result.(bool)

	return ok
}

// originOf reduces a URL to scheme://host.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}

	return u.Scheme + "://" + u.Host
}
