package core

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// CallOption adjusts a Call built by the verb helpers.
type CallOption func(*Call)

func WithHeader(name, value string) CallOption {
	return func(call *Call) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if call.Headers == nil {
			call.Headers = map[string]string{}
		}
		call.Headers[name] = value
	}
}

func WithQuery(name, value string) CallOption {
	return func(call *Call) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if call.Query == nil {
			call.Query = map[string]string{}
		}
		call.Query[name] = value
	}
}

// WithRequestID pins the X-Request-ID sent with the call and its replay.
func WithRequestID(id string) CallOption {
	return func(call *Call) {
		call.RequestID = strings.TrimSpace(id)
	}
}

// WithoutCredentials sends the call without a bearer token and skips the
// refresh on 401. Login endpoints use it.
func WithoutCredentials() CallOption {
	return func(call *Call) {
		call.Anonymous = true
	}
}

func (c *Client) Get(ctx context.Context, path string, opts ...CallOption) Response {
	return c.Do(ctx, newCall(http.MethodGet, path, nil, opts))
}

func (c *Client) Delete(ctx context.Context, path string, opts ...CallOption) Response {
	return c.Do(ctx, newCall(http.MethodDelete, path, nil, opts))
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) Response {
	return c.doJSON(ctx, http.MethodPost, path, body, opts)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts ...CallOption) Response {
	return c.doJSON(ctx, http.MethodPut, path, body, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts ...CallOption) Response {
	return c.doJSON(ctx, http.MethodPatch, path, body, opts)
}

// Upload posts file as multipart/form-data together with the given fields.
func (c *Client) Upload(ctx context.Context, path string, file FilePart, fields map[string]string, opts ...CallOption) Response {
	body, contentType, err := buildMultipartBody(file, fields)
	if err != nil {
		return Response{Error: invalidRequestError("upload body could not be built", err)}
	}
	call := newCall(http.MethodPost, path, body, opts)
	call.ContentType = contentType
	call.Multipart = true
	return c.Do(ctx, call)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, opts []CallOption) Response {
	encoded, err := encodeBody(body)
	if err != nil {
		return Response{Error: invalidRequestError("request body could not be encoded as JSON", err)}
	}
	return c.Do(ctx, newCall(method, path, encoded, opts))
}

func newCall(method, path string, body []byte, opts []CallOption) Call {
	call := Call{
		Method: method,
		Path:   path,
		Body:   body,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&call)
		}
	}
	return call
}

func encodeBody(body any) ([]byte, error) {
	switch typed := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	case json.RawMessage:
		return typed, nil
	default:
		return json.Marshal(body)
	}
}

// Decode turns a Response into a typed Result. String and byte slice targets
// receive the raw body; everything else is decoded as JSON.
func Decode[T any](resp Response) Result[T] {
	out := Result[T]{
		StatusCode: resp.StatusCode,
		NoContent:  resp.NoContent,
		Error:      resp.Error,
	}
	if resp.Error != nil || resp.NoContent {
		return out
	}
	switch target := any(&out.Data).(type) {
	case *string:
		*target = string(resp.Body)
	case *[]byte:
		*target = append([]byte(nil), resp.Body...)
	case *json.RawMessage:
		*target = append(json.RawMessage(nil), resp.Body...)
	default:
		if err := json.Unmarshal(resp.Body, &out.Data); err != nil {
			out.Error = &APIError{
				Status:  resp.StatusCode,
				Message: "response body could not be decoded",
				Code:    ErrorCodeDecode,
				Details: err.Error(),
			}
		}
	}
	return out
}

func GetJSON[T any](ctx context.Context, c *Client, path string, opts ...CallOption) Result[T] {
	return Decode[T](c.Get(ctx, path, opts...))
}

func DeleteJSON[T any](ctx context.Context, c *Client, path string, opts ...CallOption) Result[T] {
	return Decode[T](c.Delete(ctx, path, opts...))
}

func PostJSON[T any](ctx context.Context, c *Client, path string, body any, opts ...CallOption) Result[T] {
	return Decode[T](c.Post(ctx, path, body, opts...))
}

func PutJSON[T any](ctx context.Context, c *Client, path string, body any, opts ...CallOption) Result[T] {
	return Decode[T](c.Put(ctx, path, body, opts...))
}

func PatchJSON[T any](ctx context.Context, c *Client, path string, body any, opts ...CallOption) Result[T] {
	return Decode[T](c.Patch(ctx, path, body, opts...))
}

func UploadJSON[T any](ctx context.Context, c *Client, path string, file FilePart, fields map[string]string, opts ...CallOption) Result[T] {
	return Decode[T](c.Upload(ctx, path, file, fields, opts...))
}
