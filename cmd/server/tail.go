package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-danmaku/internal/infra"
	"go-danmaku/internal/service"
)

// tailCmd 订阅 serve 进程广播出的事件（Redis 或 RabbitMQ），写入本地日志。
func tailCmd() *cobra.Command {
	var (
		configPath string
		source     string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow events broadcast by a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := infra.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sink := service.NewLogSink(logger)
			switch source {
			case "redis":
				return tailRedis(ctx, cfg.Redis, sink, logger)
			case "rabbitmq":
				return tailRabbit(ctx, cfg.RabbitMQ, sink, logger)
			default:
				return fmt.Errorf("unknown source %q (redis | rabbitmq)", source)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&source, "source", "redis", "event source: redis | rabbitmq")
	return cmd
}

func tailRedis(ctx context.Context, cfg infra.RedisConfig, sink service.EventSink, logger *zap.Logger) error {
	client := infra.NewRedisClient(cfg)
	defer client.Close()
	if err := infra.PingRedis(ctx, client); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("订阅 Redis 事件", zap.String("channel", cfg.Channel))
	return service.NewRedisSubscriber(client, cfg.Channel, sink, logger).Run(ctx)
}

func tailRabbit(ctx context.Context, cfg infra.RabbitMQConfig, sink service.EventSink, logger *zap.Logger) error {
	conn, err := infra.NewRabbitMQ(cfg)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()
	if err := infra.PrepareRabbitTopology(ch, cfg); err != nil {
		return fmt.Errorf("declare rabbitmq topology: %w", err)
	}

	done, err := service.NewEventConsumer(ch, cfg.Exchange, cfg.RoutingKey, sink, logger).Start(ctx)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	logger.Info("订阅 RabbitMQ 事件", zap.String("exchange", cfg.Exchange))
	<-done
	return nil
}
