package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"go-danmaku/internal/model"
)

// EventSink 接收会话产生的事件。实现方的错误只会被记录，不会影响会话。
type EventSink interface {
	Emit(ctx context.Context, evt model.Event) error
}

// EventSinkFunc 让普通函数满足 EventSink。
type EventSinkFunc func(ctx context.Context, evt model.Event) error

func (f EventSinkFunc) Emit(ctx context.Context, evt model.Event) error {
	return f(ctx, evt)
}

// FanoutSink 把事件依次投递给多个下游，单个下游失败不影响其他下游。
type FanoutSink []EventSink

func (f FanoutSink) Emit(ctx context.Context, evt model.Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink 把事件写入日志，用于命令行监听模式与排障。
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "event"))}
}

func (s *LogSink) Emit(_ context.Context, evt model.Event) error {
	fields := []zap.Field{zap.String("event", string(evt.Name)), zap.String("id", evt.ID)}
	switch data := evt.Data.(type) {
	case model.MessageEvent:
		fields = append(fields, zap.String("cmd", data.Cmd), zap.String("payload", data.Payload))
	case model.ErrorEvent:
		fields = append(fields, zap.String("error", data.Error))
	case model.ConnectionEvent:
		fields = append(fields, zap.String("status", data.Status))
	}
	s.logger.Info("danmaku event", fields...)
	return nil
}
