package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-danmaku/internal/handler"
	"go-danmaku/internal/infra"
	"go-danmaku/internal/repository"
	"go-danmaku/internal/service"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP command API and WebSocket event stream",
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
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg infra.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := infra.NewMetrics("danmaku", reg)

	// 配置库不可用时仍可按参数直连，只是不支持 profile
	var profiles handler.ProfileStore
	if db, err := infra.NewDB(cfg.Database); err != nil {
		logger.Warn("数据库未就绪，profile 接口不可用", zap.Error(err))
	} else {
		profiles = repository.NewProfileRepository(db)
	}

	connManager := service.NewConnectionManager()
	var queues []*service.AsyncSink
	async := func(next service.EventSink) service.EventSink {
		q := service.NewAsyncSink(next, logger, service.AsyncSinkOptions{
			QueueSize:   cfg.Sink.QueueSize,
			MaxAttempts: cfg.Sink.MaxAttempts,
			Timeout:     cfg.Sink.Timeout,
			OnDrop:      metrics.SinkEventsDropped.Inc,
		})
		queues = append(queues, q)
		return q
	}

	sinks := service.FanoutSink{
		service.NewLogSink(logger),
		async(service.NewHubSink(connManager)),
	}

	if cfg.Redis.Enabled {
		client := infra.NewRedisClient(cfg.Redis)
		if err := infra.PingRedis(ctx, client); err != nil {
			logger.Warn("Redis 未就绪，跳过事件广播", zap.Error(err))
			_ = client.Close()
		} else {
			defer client.Close()
			sinks = append(sinks, async(service.NewRedisSink(client, cfg.Redis.Channel)))
		}
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := infra.NewRabbitMQ(cfg.RabbitMQ)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open rabbitmq channel: %w", err)
		}
		defer ch.Close()
		if err := infra.PrepareRabbitTopology(ch, cfg.RabbitMQ); err != nil {
			return fmt.Errorf("declare rabbitmq topology: %w", err)
		}
		sinks = append(sinks, async(service.NewRabbitSink(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)))
	}

	supervisor := service.NewSupervisor(service.NewSessionFactory(cfg.Session, sinks, logger, metrics), logger)

	router := gin.New()
	router.Use(handler.RequestLogger(logger), gin.Recovery())
	router.GET("/ws", handler.NewWebSocketHandler(connManager, logger).HandleWebSocket)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	handler.NewCommandHandler(supervisor, profiles, logger).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP/WebSocket 服务启动", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先结束会话，connection-closed 事件还能送达订阅者
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("会话关闭超时", zap.Error(err))
	}
	for _, q := range queues {
		q.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("服务关闭异常", zap.Error(err))
	}
	logger.Info("服务已关闭")
	return serveErr
}
