package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-danmaku/internal/model"
)

// RedisSink 通过 PUBLISH 广播事件，不做持久化。
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Emit(ctx context.Context, evt model.Event) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

// RedisSubscriber 订阅 RedisSink 的频道，把事件转交给 sink。
type RedisSubscriber struct {
	client  *redis.Client
	channel string
	sink    EventSink
	logger  *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, channel string, sink EventSink, logger *zap.Logger) *RedisSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSubscriber{
		client:  client,
		channel: channel,
		sink:    sink,
		logger:  logger.With(zap.String("component", "redis-subscriber")),
	}
}

// Run 阻塞直到 ctx 取消；订阅失败时立即返回错误。
func (s *RedisSubscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// 等待订阅确认
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				s.logger.Warn("解析 Redis 事件失败", zap.Error(err))
				continue
			}
			if err := s.sink.Emit(ctx, evt); err != nil {
				s.logger.Warn("转交事件失败", zap.String("id", evt.ID), zap.Error(err))
			}
		}
	}
}
