package core

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"
)

const testBaseURL = "http://api.test"

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) counterTotal(name string, status string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, counter := range m.counters {
		if counter.name != name {
			continue
		}
		if status != "" && counter.tags["status"] != status {
			continue
		}
		total += counter.value
	}
	return total
}

func (m *captureMetricsRecorder) hasHistogram(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, histogram := range m.histograms {
		if histogram.name == name {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func hasLog(records []capturedLog, level string, msg string) bool {
	for _, record := range records {
		if record.level == level && record.msg == msg {
			return true
		}
	}
	return false
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any)                {}
func (stubLogger) Debug(string, ...any)                {}
func (stubLogger) Info(string, ...any)                 {}
func (stubLogger) Warn(string, ...any)                 {}
func (stubLogger) Error(string, ...any)                {}
func (stubLogger) Fatal(string, ...any)                {}
func (l stubLogger) WithContext(context.Context) Logger { return l }

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

// fakeTransport records every request and signals the issue notifier before
// handing the request to handler.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []TransportRequest
	handler func(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

func (f *fakeTransport) Do(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if notify := IssueNotifierFromContext(ctx); notify != nil {
		notify()
	}
	if f.handler == nil {
		return TransportResponse{StatusCode: 200}, nil
	}
	return f.handler(ctx, req)
}

func (f *fakeTransport) snapshot() []TransportRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TransportRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeTransport) countPath(path string) int {
	count := 0
	for _, call := range f.snapshot() {
		if requestPath(call) == path {
			count++
		}
	}
	return count
}

func requestPath(req TransportRequest) string {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return req.URL
	}
	return parsed.Path
}

func jsonResponse(status int, body string) TransportResponse {
	return TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{HeaderContentType: ContentTypeJSON},
		Body:       []byte(body),
	}
}

func newTestClient(t *testing.T, transport TransportAdapter, opts ...Option) *Client {
	t.Helper()
	options := append([]Option{WithTransport(transport), WithLogger(stubLogger{})}, opts...)
	client, err := NewClient(Config{BaseURL: testBaseURL}, options...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

// waitForQueued blocks until n callers are parked on the in-flight refresh.
func waitForQueued(t *testing.T, client *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client.mu.Lock()
		queued := len(client.waiters)
		client.mu.Unlock()
		if queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d queued callers", n)
}

func waitForIdle(t *testing.T, client *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !client.Session().Refreshing {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected refresh state to settle")
}
