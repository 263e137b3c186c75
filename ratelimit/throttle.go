package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-apiclient/core"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

const (
	DefaultInitialBackoff    = time.Second
	DefaultMaxBackoff        = time.Minute
	DefaultRetryHint         = 5 * time.Second
	defaultRequestsPerSecond = 20
	defaultBurst             = 40
)

// ThrottledError is returned by Wait when the caller's context ends before the
// server imposed cooldown does.
type ThrottledError struct {
	RetryAfter time.Duration
	LastStatus int
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: outbound calls throttled for %s", e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	if e.LastStatus > 0 {
		metadata["last_status"] = e.LastStatus
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ClientErrorRateLimited).
		WithMetadata(metadata)
}

// State is a snapshot of what the server last told us about its limits.
type State struct {
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

// Throttle paces outbound calls with a local token bucket and pauses them
// while the server asks us to back off (429, Retry-After, exhausted
// X-RateLimit-Remaining).
type Throttle struct {
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	limiter *rate.Limiter
	mu      sync.Mutex
	state   State
}

type Option func(*Throttle)

func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		t.Now = now
	}
}

func WithBackoff(initial, maximum time.Duration) Option {
	return func(t *Throttle) {
		t.InitialBackoff = initial
		t.MaxBackoff = maximum
	}
}

// New builds a throttle allowing rps requests per second with the given
// burst. rps <= 0 disables local pacing and keeps only server driven cooldown.
func New(rps float64, burst int, opts ...Option) *Throttle {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	throttle := &Throttle{
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		limiter:        rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(throttle)
		}
	}
	return throttle
}

func NewDefault(opts ...Option) *Throttle {
	return New(defaultRequestsPerSecond, defaultBurst, opts...)
}

func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if delay, status := t.cooldown(); delay > 0 {
		if deadline, ok := ctx.Deadline(); ok && deadline.Before(t.now().Add(delay)) {
			return ThrottledError{RetryAfter: delay, LastStatus: status}
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ThrottledError{RetryAfter: delay, LastStatus: status}
		case <-timer.C:
		}
	}
	return t.limiter.Wait(ctx)
}

func (t *Throttle) Observe(statusCode int, headers map[string]string) {
	if t == nil {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.state
	state.LastStatus = statusCode
	state.UpdatedAt = now

	limit, hasLimit := parseHeaderInt(headers, "x-ratelimit-limit")
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(headers, "x-ratelimit-remaining")
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}
	retryAfter, hasRetryAfter := parseRetryAfter(headers, now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if isThrottledResponse(statusCode, state.Remaining, hasRemaining, hasResetAt, hasLimit, hasRetryAfter) {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			if hasResetAt && resetAt.After(now) {
				delay = resetAt.Sub(now)
			} else {
				delay = t.nextBackoff(state.Attempts)
			}
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		t.state = state
		return
	}
	state.Attempts = 0
	state.ThrottledUntil = nil
	t.state = state
}

func (t *Throttle) State() State {
	if t == nil {
		return State{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Throttle) cooldown() (time.Duration, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	until := t.state.ThrottledUntil
	if until == nil {
		return 0, 0
	}
	now := t.now()
	if !now.Before(*until) {
		return 0, 0
	}
	return until.Sub(now), t.state.LastStatus
}

func (t *Throttle) now() time.Time {
	if t != nil && t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func (t *Throttle) nextBackoff(attempt int) time.Duration {
	initial := t.InitialBackoff
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	maximum := t.MaxBackoff
	if maximum <= 0 {
		maximum = DefaultMaxBackoff
	}
	if attempt <= 0 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay <= 0 {
		return DefaultRetryHint
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func isThrottledResponse(
	statusCode int,
	remaining int,
	hasRemaining bool,
	hasResetAt bool,
	hasLimit bool,
	hasRetryAfter bool,
) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 {
		return statusCode == http.StatusServiceUnavailable && hasRetryAfter
	}
	return hasRemaining && remaining == 0 && (hasResetAt || hasLimit || hasRetryAfter)
}

func parseRetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, "x-ratelimit-reset")
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
