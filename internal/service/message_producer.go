package service

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"go-danmaku/internal/model"
)

// Publisher 是 *amqp.Channel 的发布能力子集，便于测试替换。
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitSink 将事件发布到 RabbitMQ 交换机，routing key 为 <prefix>.<事件名>。
type RabbitSink struct {
	ch         Publisher
	exchange   string
	routingKey string
}

func NewRabbitSink(ch Publisher, exchange, routingKey string) *RabbitSink {
	return &RabbitSink{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

// Emit 使用非持久化消息，事件丢失可以接受。
func (s *RabbitSink) Emit(ctx context.Context, evt model.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx,
		s.exchange,
		s.routingKey+"."+string(evt.Name),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
			Timestamp:    evt.Time,
			MessageId:    evt.ID,
			Type:         string(evt.Name),
		})
}
