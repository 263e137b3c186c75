package gologger

import (
	"context"
	"fmt"
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ZerologLogger writes glog calls through a zerolog.Logger. Arguments are read
// as key/value pairs; a trailing odd value is logged under "arg".
type ZerologLogger struct {
	logger zerolog.Logger
}

var (
	_ glog.Logger       = (*ZerologLogger)(nil)
	_ glog.FieldsLogger = (*ZerologLogger)(nil)
)

func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// NewJSONLogger builds a zerolog JSON logger on w at the given level name.
func NewJSONLogger(w io.Writer, level string) *ZerologLogger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return NewZerologLogger(zerolog.New(w).Level(parsed).With().Timestamp().Logger())
}

func (l *ZerologLogger) Trace(msg string, args ...any) { l.write(l.logger.Trace(), msg, args) }
func (l *ZerologLogger) Debug(msg string, args ...any) { l.write(l.logger.Debug(), msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.write(l.logger.Info(), msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.write(l.logger.Warn(), msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.write(l.logger.Error(), msg, args) }

// Fatal logs at fatal level without exiting the process.
func (l *ZerologLogger) Fatal(msg string, args ...any) {
	l.write(l.logger.WithLevel(zerolog.FatalLevel), msg, args)
}

func (l *ZerologLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &ZerologLogger{logger: l.logger.With().Ctx(ctx).Logger()}
}

func (l *ZerologLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &ZerologLogger{logger: l.logger.With().Fields(fields).Logger()}
}

func (l *ZerologLogger) write(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	for index := 0; index < len(args); index += 2 {
		if index+1 >= len(args) {
			event = event.Interface("arg", args[index])
			break
		}
		key, ok := args[index].(string)
		if !ok {
			key = fmt.Sprint(args[index])
		}
		event = event.Interface(key, args[index+1])
	}
	event.Msg(msg)
}

// ZerologProvider hands out named children of one zerolog logger.
type ZerologProvider struct {
	root zerolog.Logger
}

var _ glog.LoggerProvider = (*ZerologProvider)(nil)

func NewZerologProvider(root zerolog.Logger) *ZerologProvider {
	return &ZerologProvider{root: root}
}

func (p *ZerologProvider) GetLogger(name string) glog.Logger {
	logger := p.root
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		logger = logger.With().Str("logger", trimmed).Logger()
	}
	return NewZerologLogger(logger)
}
