// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 描述日志输出位置与滚动策略
type Options struct {
	Service    string
	Level      string
	Path       string // 为空时只输出到控制台
	MaxSizeMB  int
	MaxBackups int
	Console    bool
}

// Init 构建全局 logger，并设置为 zerolog 的默认上下文 logger。
// 返回的 io.Closer 用于在退出时关闭滚动文件。
func Init(opts Options) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if opts.Path != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		writers = append(writers, rotating)
		closer = rotating
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.Service).
		Logger()

	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l, closer
}

// Ctx 返回绑定在 ctx 上的 logger；若当前有活跃的 span，则附带 trace_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	withTrace := l.With().Str("trace_id", sc.TraceID().String()).Logger()
	return &withTrace
}

// WithContext 把带有额外字段的 logger 挂到 ctx 上，后续 Ctx(ctx) 都会带上这些字段。
func WithContext(ctx context.Context, fields map[string]string) context.Context {
	c := zerolog.Ctx(ctx).With()
	for k, v := range fields {
		c = c.Str(k, v)
	}
	l := c.Logger()
	return l.WithContext(ctx)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
