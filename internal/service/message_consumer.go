package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"go-danmaku/internal/model"
)

// Consumer 是 *amqp.Channel 的订阅能力子集，便于测试替换。
type Consumer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// EventConsumer 从事件交换机订阅 RabbitSink 发布的事件并转交给 sink。
type EventConsumer struct {
	ch         Consumer
	exchange   string
	bindingKey string
	sink       EventSink
	logger     *zap.Logger
}

// NewEventConsumer 按 <routingKey>.# 绑定，接收全部事件类型。
func NewEventConsumer(ch Consumer, exchange, routingKey string, sink EventSink, logger *zap.Logger) *EventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventConsumer{
		ch:         ch,
		exchange:   exchange,
		bindingKey: routingKey + ".#",
		sink:       sink,
		logger:     logger.With(zap.String("component", "mq-consumer")),
	}
}

// Start 声明临时队列并启动消费循环（非阻塞），ctx 取消或 channel 关闭后退出。
// 返回的 channel 在循环退出时关闭。
func (c *EventConsumer) Start(ctx context.Context) (<-chan struct{}, error) {
	q, err := c.ch.QueueDeclare(
		"",
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, err
	}
	if err := c.ch.QueueBind(q.Name, c.bindingKey, c.exchange, false, nil); err != nil {
		return nil, err
	}
	deliveries, err := c.ch.Consume(
		q.Name,
		"",
		false, // autoAck
		true,  // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				c.handleDelivery(ctx, msg)
			}
		}
	}()
	return done, nil
}

func (c *EventConsumer) handleDelivery(parentCtx context.Context, msg amqp.Delivery) {
	var evt model.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		c.logger.Warn("解析 MQ 事件失败", zap.Error(err))
		_ = msg.Nack(false, false) // 丢弃坏消息
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, 5*time.Second)
	defer cancel()

	if err := c.sink.Emit(ctx, evt); err != nil {
		c.logger.Warn("转交事件失败", zap.String("id", evt.ID), zap.Error(err))
		_ = msg.Nack(false, true) // 失败可重试
		return
	}

	_ = msg.Ack(false)
}
