package logger

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type option struct {
	level      string
	json       bool
	writer     io.Writer
	serverName string
	fields     []zap.Field
}

type Option func(*option)

func WithLevel(level string) Option {
	return func(o *option) {
		o.level = level
	}
}

// WithJSON switches the console encoder for the JSON one.
func WithJSON(json bool) Option {
	return func(o *option) {
		o.json = json
	}
}

func WithWriter(w io.Writer) Option {
	return func(o *option) {
		o.writer = w
	}
}

func WithFields(fields ...zap.Field) Option {
	return func(o *option) {
		o.fields = fields
	}
}

func WithServerName(name string) Option {
	return func(o *option) {
		o.serverName = name
	}
}

func New(opts ...Option) *zap.Logger {
	o := &option{
		level:  zapcore.InfoLevel.String(),
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	encoder := zapcore.NewConsoleEncoder
	if o.json {
		encoder = zapcore.NewJSONEncoder
	}
	fields := o.fields
	if o.serverName != "" {
		fields = append(fields, zap.String("service_name", o.serverName))
	}
	core := zapcore.NewCore(
		encoder(newEncoderConfig()),
		zapcore.AddSync(o.writer),
		newLevel(o.level),
	).With(fields)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.DPanicLevel))
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

func newLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	return l
}

type logKey struct{}

// From returns the logger carried by ctx, or a no-op logger.
func From(ctx context.Context) *zap.Logger {
	l, ok := ctx.Value(logKey{}).(*zap.Logger)
	if !ok {
		return zap.NewNop()
	}
	return l
}

func With(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, l)
}
