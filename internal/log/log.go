// Package log 提供带上下文属性的 slog 日志器。
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler 在输出记录前附加上下文中携带的属性。
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler 包装给定的 handler。
func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

// Handle 实现 slog.Handler。
func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保证派生出的 handler 仍然读取上下文属性。
func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 同上。
func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// ContextAttrs 返回携带额外日志属性的上下文。
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a[:len(a):len(a)], attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// New 创建写到标准错误的 JSON 日志器。
func New(verbose bool) *slog.Logger {
	return NewWriter(os.Stderr, verbose)
}

// NewWriter 创建写到 w 的 JSON 日志器。
func NewWriter(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base))
}
