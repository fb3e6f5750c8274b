package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-danmaku/internal/infra"
	"go-danmaku/internal/service"
)

// listenCmd 不启动 HTTP 服务，直接连到弹幕服务器并把事件写入日志。
func listenCmd() *cobra.Command {
	var (
		configPath string
		req        service.ConnectRequest
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to a room and log events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
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

			session := service.NewSession(req, cfg.Session, service.NewLogSink(logger), logger, nil)
			// Ctrl-C 结束属于正常退出
			if err := session.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&req.Host, "host", "broadcastlv.chat.bilibili.com", "danmaku server host")
	flags.Uint16Var(&req.Port, "port", 2243, "danmaku server port")
	flags.Uint64Var(&req.UID, "uid", 0, "user id sent in the auth payload")
	flags.Uint32Var(&req.RoomID, "room", 0, "room id")
	flags.StringVar(&req.Token, "token", "", "auth key")
	return cmd
}
