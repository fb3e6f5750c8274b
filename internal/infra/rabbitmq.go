package infra

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 事件发布用的 MQ 连接与交换机。
type RabbitMQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// NewRabbitMQ 建立连接并返回 Connection。
func NewRabbitMQ(cfg RabbitMQConfig) (*amqp.Connection, error) {
	return amqp.Dial(cfg.URL)
}

// PrepareRabbitTopology 声明事件交换机（幂等）。
// 事件是瞬时的，不声明队列，由消费方自行绑定。
func PrepareRabbitTopology(ch *amqp.Channel, cfg RabbitMQConfig) error {
	return ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		false, // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}
