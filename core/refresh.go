package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

type refreshOutcome struct {
	token string
	err   *APIError
}

// refreshWaiter is one queued continuation. outcome is resolved exactly once;
// issued is closed once the waiter's replay reached the wire or the waiter gave
// up its slot.
type refreshWaiter struct {
	outcome   chan refreshOutcome
	issued    chan struct{}
	issueOnce sync.Once
}

func newRefreshWaiter() *refreshWaiter {
	return &refreshWaiter{
		outcome: make(chan refreshOutcome, 1),
		issued:  make(chan struct{}),
	}
}

func (w *refreshWaiter) markIssued() {
	if w == nil {
		return
	}
	w.issueOnce.Do(func() {
		close(w.issued)
	})
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh renews the access token through the shared single flight. Calls made
// while a renewal is already in flight join it instead of starting another.
func (c *Client) Refresh(ctx context.Context) *APIError {
	if c == nil {
		return invalidRequestError("core: client is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, waiter, apiErr := c.awaitRenewedToken(ctx, c.AccessToken())
	waiter.markIssued()
	return apiErr
}

// awaitRenewedToken parks the caller until the refresh cycle covering usedToken
// settles. A returned waiter must be marked issued by the caller once its
// replay has been sent.
func (c *Client) awaitRenewedToken(ctx context.Context, usedToken string) (string, *refreshWaiter, *APIError) {
	c.mu.Lock()
	refreshToken := c.creds.RefreshToken
	if refreshToken == "" {
		c.mu.Unlock()
		return "", nil, sessionExpiredError("no refresh token available")
	}
	if current := c.creds.AccessToken; current != "" && current != usedToken {
		// Renewed by an earlier cycle after this call was sent.
		c.mu.Unlock()
		return current, nil, nil
	}

	generation := c.generation
	waiter := newRefreshWaiter()
	start := false
	switch {
	case c.draining:
		c.deferred = append(c.deferred, waiter)
	case c.refreshing:
		c.waiters = append(c.waiters, waiter)
	default:
		c.refreshing = true
		c.waiters = append(c.waiters, waiter)
		start = true
	}
	c.mu.Unlock()

	if start {
		go c.runRefreshCycles(context.WithoutCancel(ctx), refreshToken, generation)
	}

	select {
	case outcome := <-waiter.outcome:
		if outcome.err != nil {
			waiter.markIssued()
			return "", nil, outcome.err
		}
		return outcome.token, waiter, nil
	case <-ctx.Done():
		waiter.markIssued()
		return "", nil, networkError(ErrorCodeNetwork, ctx.Err())
	}
}

func (c *Client) runRefreshCycles(ctx context.Context, refreshToken string, generation uint64) {
	for {
		startedAt := time.Now()
		pair, statusCode, apiErr := c.requestRenewedToken(ctx, refreshToken)
		fields := map[string]any{"method": http.MethodPost, "path": c.config.RefreshPath}
		if statusCode > 0 {
			fields["status_code"] = statusCode
		}
		if apiErr == nil {
			fields["rotated"] = pair.RefreshToken != refreshToken
		}
		c.observeOperation(ctx, startedAt, "refresh", apiErr, fields)

		if apiErr != nil {
			c.failRefreshCycle(ctx, generation, apiErr)
			return
		}
		next, nextGeneration, again := c.completeRefreshCycle(ctx, generation, pair)
		if !again {
			return
		}
		refreshToken, generation = next, nextGeneration
	}
}

func (c *Client) requestRenewedToken(ctx context.Context, refreshToken string) (CredentialPair, int, *APIError) {
	if refreshToken == "" {
		return CredentialPair{}, 0, sessionExpiredError("no refresh token available")
	}
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return CredentialPair{}, 0, sessionExpiredError("refresh request could not be encoded")
	}

	timeout := c.config.refreshTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := map[string]string{
		HeaderContentType: ContentTypeJSON,
		HeaderAccept:      ContentTypeJSON,
		HeaderRequestID:   c.requestID(),
	}
	if ua := strings.TrimSpace(c.config.UserAgent); ua != "" {
		headers[HeaderUserAgent] = ua
	}
	resp, err := c.transport.Do(ctx, TransportRequest{
		Method:               http.MethodPost,
		URL:                  c.config.resolveURL(c.config.RefreshPath),
		Headers:              headers,
		Body:                 body,
		Timeout:              timeout,
		MaxResponseBodyBytes: c.config.MaxResponseBodyBytes,
	})
	if err != nil {
		return CredentialPair{}, 0, sessionExpiredError("refresh request failed: " + err.Error())
	}
	if !isSuccessStatus(resp.StatusCode) {
		return CredentialPair{}, resp.StatusCode, sessionExpiredError(fmt.Sprintf("refresh rejected with status %d", resp.StatusCode))
	}

	var payload refreshResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil || strings.TrimSpace(payload.AccessToken) == "" {
		return CredentialPair{}, resp.StatusCode, sessionExpiredError("refresh response carried no access_token")
	}
	rotated := strings.TrimSpace(payload.RefreshToken)
	if rotated == "" {
		rotated = refreshToken
	}
	return CredentialPair{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: rotated,
	}, resp.StatusCode, nil
}

// completeRefreshCycle installs the renewed pair and releases the queued
// waiters one at a time, in arrival order. It reports whether calls rejected
// with the renewed token are waiting for another cycle. If the pair was
// replaced or cleared while the refresh was in flight, the renewed pair is
// discarded and waiters follow the current credentials instead.
func (c *Client) completeRefreshCycle(ctx context.Context, generation uint64, pair CredentialPair) (string, uint64, bool) {
	c.persistMu.Lock()
	c.mu.Lock()
	superseded := c.generation != generation
	changed := false
	if !superseded {
		changed = c.creds != pair
		c.creds = pair
		c.generation++
	}
	current := c.creds
	queue := c.waiters
	c.waiters = nil
	c.draining = true
	c.mu.Unlock()
	if changed {
		if err := c.persistence.Save(ctx, pair); err != nil {
			c.logError(ctx, "credential persistence save failed", map[string]any{"error": err.Error()})
		}
	}
	c.persistMu.Unlock()

	if superseded {
		c.logInfo(ctx, "credentials changed during refresh; renewed pair discarded", map[string]any{
			"waiters":   len(queue),
			"signed_in": current.AccessToken != "",
		})
	}
	for _, waiter := range queue {
		if current.AccessToken == "" {
			waiter.outcome <- refreshOutcome{err: sessionExpiredError("signed out while refreshing")}
			continue
		}
		waiter.outcome <- refreshOutcome{token: current.AccessToken}
		<-waiter.issued
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = false
	if len(c.deferred) == 0 {
		c.refreshing = false
		return "", 0, false
	}
	c.waiters = c.deferred
	c.deferred = nil
	c.logInfo(ctx, "renewed access token rejected; starting another refresh cycle", map[string]any{
		"waiters": len(c.waiters),
	})
	return c.creds.RefreshToken, c.generation, true
}

// failRefreshCycle resolves every waiter with session_expired. Credentials are
// dropped only if nobody replaced them while the refresh was in flight.
func (c *Client) failRefreshCycle(ctx context.Context, generation uint64, apiErr *APIError) {
	c.persistMu.Lock()
	c.mu.Lock()
	queue := c.waiters
	c.waiters = nil
	c.refreshing = false
	cleared := false
	if !c.creds.IsZero() && c.generation == generation {
		c.creds = CredentialPair{}
		cleared = true
	}
	c.mu.Unlock()
	if cleared {
		_ = c.clearPersisted(ctx)
	}
	c.persistMu.Unlock()

	for _, waiter := range queue {
		expired := *apiErr
		waiter.outcome <- refreshOutcome{err: &expired}
	}

	c.logWarn(ctx, "session expired", map[string]any{
		"waiters": len(queue),
		"reason":  apiErr.Reason,
		"cleared": cleared,
	})
	if cleared && c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}
