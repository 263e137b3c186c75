package core

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Do sends call with the current access token attached. A 401 is recovered
// through the shared refresh and the call is replayed at most once. Failures
// are returned in Response.Error, never as panics.
func (c *Client) Do(ctx context.Context, call Call) Response {
	if c == nil {
		return Response{Error: invalidRequestError("core: client is nil", nil)}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	call = call.clone()
	call.Method = c.resolveMethod(call.Method)
	if strings.TrimSpace(call.RequestID) == "" {
		call.RequestID = c.requestID()
	}

	startedAt := time.Now()
	resp := c.dispatch(ctx, call)

	fields := map[string]any{
		"method":     call.Method,
		"path":       call.Path,
		"request_id": call.RequestID,
		"replayed":   resp.Replayed,
	}
	if resp.StatusCode > 0 {
		fields["status_code"] = resp.StatusCode
	}
	c.observeOperation(ctx, startedAt, "dispatch", resp.Error, fields)
	c.reportError(resp.Error)
	return resp
}

func (c *Client) dispatch(ctx context.Context, call Call) Response {
	if call.Anonymous {
		return c.send(ctx, call, "")
	}
	token, waiter, apiErr := c.tokenForDispatch(ctx)
	if apiErr != nil {
		return Response{StatusCode: apiErr.Status, Error: apiErr}
	}
	resp := c.issue(ctx, call, token, waiter)
	if !isUnauthorized(resp) {
		return resp
	}
	if waiter != nil {
		return expiredResponse(resp, "renewed access token rejected")
	}
	return c.recoverUnauthorized(ctx, call, token)
}

// tokenForDispatch returns the token to attach. With proactive refresh on, a
// JWT about to expire is renewed first and the caller is handed the waiter
// slot it must mark issued.
func (c *Client) tokenForDispatch(ctx context.Context) (string, *refreshWaiter, *APIError) {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	if !c.config.ProactiveRefresh || creds.AccessToken == "" || creds.RefreshToken == "" {
		return creds.AccessToken, nil, nil
	}
	expiresAt := AccessTokenExpiry(creds.AccessToken)
	if expiresAt == nil || c.now().Add(c.config.RefreshSkew).Before(*expiresAt) {
		return creds.AccessToken, nil, nil
	}
	c.logDebug(ctx, "access token close to expiry; renewing before dispatch", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	return c.awaitRenewedToken(ctx, creds.AccessToken)
}

func (c *Client) recoverUnauthorized(ctx context.Context, call Call, usedToken string) Response {
	renewed, waiter, apiErr := c.awaitRenewedToken(ctx, usedToken)
	if apiErr != nil {
		return Response{StatusCode: apiErr.Status, Error: apiErr}
	}

	resp := c.issue(ctx, call, renewed, waiter)
	resp.Replayed = true
	c.recordCounter(ctx, metricReplayTotal, 1, map[string]string{
		"method":      call.Method,
		"status_code": strconv.Itoa(resp.StatusCode),
	})
	if isUnauthorized(resp) {
		return expiredResponse(resp, "replayed call rejected")
	}
	return resp
}

func (c *Client) issue(ctx context.Context, call Call, token string, waiter *refreshWaiter) Response {
	if waiter == nil {
		return c.send(ctx, call, token)
	}
	resp := c.send(WithIssueNotifier(ctx, waiter.markIssued), call, token)
	waiter.markIssued()
	return resp
}

func (c *Client) send(ctx context.Context, call Call, token string) Response {
	headers := map[string]string{
		HeaderAccept: ContentTypeJSON,
	}
	switch {
	case strings.TrimSpace(call.ContentType) != "":
		headers[HeaderContentType] = call.ContentType
	case !call.Multipart:
		headers[HeaderContentType] = ContentTypeJSON
	}
	if ua := strings.TrimSpace(c.config.UserAgent); ua != "" {
		headers[HeaderUserAgent] = ua
	}
	for key, value := range call.Headers {
		headers[key] = value
	}
	if token != "" {
		headers[HeaderAuthorization] = "Bearer " + token
	}
	headers[HeaderRequestID] = call.RequestID

	if timeout := c.config.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := c.transport.Do(ctx, TransportRequest{
		Method:               call.Method,
		URL:                  c.config.resolveURL(call.Path),
		Headers:              headers,
		Query:                cloneStringMap(call.Query),
		Body:                 call.Body,
		Timeout:              c.config.RequestTimeout,
		MaxResponseBodyBytes: c.config.MaxResponseBodyBytes,
	})
	if err != nil {
		code := ErrorCodeNetwork
		if call.Multipart {
			code = ErrorCodeUpload
		}
		return Response{Error: networkError(code, err)}
	}

	out := Response{
		StatusCode:  result.StatusCode,
		Headers:     result.Headers,
		Body:        result.Body,
		ContentType: headerValue(result.Headers, HeaderContentType),
	}
	if isSuccessStatus(result.StatusCode) {
		out.NoContent = result.StatusCode == http.StatusNoContent || len(result.Body) == 0
		return out
	}
	out.Error = httpErrorFromResponse(result.StatusCode, out.ContentType, result.Body)
	return out
}

// reportError forwards transport and HTTP failures to the observer. A 401,
// session expiry and local request errors are never reported.
func (c *Client) reportError(apiErr *APIError) {
	if apiErr == nil || c.onError == nil || apiErr.Status == http.StatusUnauthorized {
		return
	}
	switch apiErr.Code {
	case ErrorCodeHTTP, ErrorCodeNetwork, ErrorCodeUpload:
		c.onError(*apiErr)
	}
}

func isUnauthorized(resp Response) bool {
	return resp.StatusCode == http.StatusUnauthorized && resp.Error != nil && resp.Error.Code == ErrorCodeHTTP
}

func expiredResponse(resp Response, reason string) Response {
	expired := sessionExpiredError(reason)
	if resp.Error != nil {
		expired.Details = resp.Error.Message
	}
	return Response{
		StatusCode:  http.StatusUnauthorized,
		Headers:     resp.Headers,
		Body:        resp.Body,
		ContentType: resp.ContentType,
		Replayed:    resp.Replayed,
		Error:       expired,
	}
}
