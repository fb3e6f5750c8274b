package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-danmaku/internal/codec"
	"go-danmaku/internal/infra"
	"go-danmaku/internal/model"
)

// 认证消息固定使用序号 1，之后的心跳从 2 开始。
const (
	authSequence      = 1
	firstHeartbeatSeq = 2
)

// ConnectRequest 描述一次连接所需的全部参数。
type ConnectRequest struct {
	Host   string `json:"host"`
	Port   uint16 `json:"port"`
	UID    uint64 `json:"uid"`
	RoomID uint32 `json:"room"`
	Token  string `json:"token"`
}

func (r ConnectRequest) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

func (r ConnectRequest) Validate() error {
	if r.Host == "" || r.Port == 0 {
		return fmt.Errorf("%w: host and port are required", ErrInvalidRequest)
	}
	return nil
}

// Session 管理一条弹幕连接从建连到关闭的完整生命周期。
// socket 只由 Run 所在的 goroutine 与其内部读协程持有。
type Session struct {
	req        ConnectRequest
	cfg        infra.SessionConfig
	sink       EventSink
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *infra.Metrics
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSession(req ConnectRequest, cfg infra.SessionConfig, sink EventSink, logger *zap.Logger, metrics *infra.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = infra.NopMetrics()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	logger = logger.With(
		zap.String("component", "session"),
		zap.String("addr", req.Addr()),
		zap.Uint32("room", req.RoomID),
	)
	return &Session{
		req:        req,
		cfg:        cfg,
		sink:       sink,
		dispatcher: NewDispatcher(sink, logger, metrics),
		logger:     logger,
		metrics:    metrics,
		dial:       (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext,
	}
}

type inbound struct {
	msg *model.Message
	err error
}

// Run 建连、认证，然后进入收发循环，直到出现致命错误、对端关闭或 ctx 被取消。
// 进入收发循环后，无论以何种方式退出都会发出 connection-closed。
// ctx 取消时返回 ctx.Err()。
func (s *Session) Run(ctx context.Context) error {
	// 事件投递不随会话取消而中断
	emitCtx := context.WithoutCancel(ctx)

	conn, err := s.dial(ctx, "tcp", s.req.Addr())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.emit(emitCtx, model.NewErrorEvent(fmt.Sprintf("Connection failed: %v", err)))
		return fmt.Errorf("%w: %w", ErrConnectFailure, err)
	}
	defer conn.Close()
	// 取消时关闭 socket，解除阻塞中的读写
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.logger.Info("已建立 TCP 连接")
	s.emit(emitCtx, model.ConnectedEvent())

	s.metrics.SessionsActive.Inc()
	defer s.metrics.SessionsActive.Dec()

	if err := s.authenticate(conn); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.emit(emitCtx, model.NewErrorEvent(fmt.Sprintf("Failed to send auth: %v", err)))
		return fmt.Errorf("%w: %w", ErrAuthSend, err)
	}

	err = s.serve(ctx, emitCtx, conn)
	s.emit(emitCtx, model.ClosedEvent())
	s.logger.Info("连接已关闭", zap.Error(err))
	return err
}

func (s *Session) authenticate(conn net.Conn) error {
	auth, err := json.Marshal(model.NewAuthPayload(s.req.UID, s.req.RoomID, s.req.Token))
	if err != nil {
		return err
	}
	return s.send(conn, model.Verification(authSequence, auth))
}

// serve 是 Active 状态：每轮只处理一个就绪的事件源（入站帧或心跳）。
func (s *Session) serve(ctx, emitCtx context.Context, conn net.Conn) error {
	var seq SeqGenerator = NewCounterSeqGenerator(firstHeartbeatSeq)
	// time.Ticker 的首次触发在一个周期之后
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	frames := make(chan inbound)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		return readFrames(gctx, codec.NewReader(conn), frames)
	})
	defer func() {
		cancel()
		_ = conn.Close()
		_ = g.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case in := <-frames:
			if in.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(in.err, io.EOF) {
					s.logger.Info("服务端关闭了连接")
					return nil
				}
				s.metrics.ProtocolErrors.WithLabelValues("receive").Inc()
				s.emit(emitCtx, model.NewErrorEvent(fmt.Sprintf("Receive error: %v", in.err)))
				return receiveError(in.err)
			}
			s.dispatcher.Handle(emitCtx, in.msg)

		case <-ticker.C:
			if err := s.send(conn, model.Heartbeat(seq.Next())); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.emit(emitCtx, model.NewErrorEvent(fmt.Sprintf("Heartbeat error: %v", err)))
				return fmt.Errorf("%w: %w", ErrTransport, err)
			}
			s.metrics.HeartbeatsSent.Inc()
		}
	}
}

// receiveError 保留解码错误原样，其余归为传输错误。
func receiveError(err error) error {
	if errors.Is(err, codec.ErrOversizedFrame) || errors.Is(err, codec.ErrInvalidHeader) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func readFrames(ctx context.Context, r *codec.Reader, out chan<- inbound) error {
	for {
		msg, err := r.ReadMessage()
		select {
		case out <- inbound{msg: msg, err: err}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) send(conn net.Conn, msg model.Message) error {
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_, err := conn.Write(codec.Encode(msg))
	return err
}

func (s *Session) emit(ctx context.Context, evt model.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, evt); err != nil {
		s.logger.Debug("事件投递失败", zap.String("event", string(evt.Name)), zap.Error(err))
	}
}

// NewSessionFactory 供 Supervisor 使用，所有会话共享配置、事件下游与指标。
func NewSessionFactory(cfg infra.SessionConfig, sink EventSink, logger *zap.Logger, metrics *infra.Metrics) SessionFactory {
	return func(req ConnectRequest) Runner {
		return NewSession(req, cfg, sink, logger, metrics)
	}
}
