package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// 返回给宿主的结果文本
const (
	ResultConnecting   = "Connecting..."
	ResultDisconnected = "Disconnected"
)

// Runner 是可被 Supervisor 托管的一次连接。
type Runner interface {
	Run(ctx context.Context) error
}

// SessionFactory 根据连接请求创建 Runner。
type SessionFactory func(req ConnectRequest) Runner

type sessionHandle struct {
	req    ConnectRequest
	cancel context.CancelFunc
	done   chan struct{}
	// cancelled 由 Disconnect 置位，受 Supervisor.mu 保护
	cancelled bool
}

func (h *sessionHandle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Supervisor 保证同一时刻最多只有一个活跃会话。
// 所有状态都在 mu 保护下访问，没有其他全局可变状态。
type Supervisor struct {
	mu      sync.Mutex
	current *sessionHandle
	factory SessionFactory
	logger  *zap.Logger
}

func NewSupervisor(factory SessionFactory, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		factory: factory,
		logger:  logger.With(zap.String("component", "supervisor")),
	}
}

// Connect 在后台启动新会话并立即返回 "Connecting..."。
// 已有未结束的会话时返回 ErrAlreadyConnected，原会话不受影响；
// 上一个会话已被 Disconnect 但仍在清理时，先等待其结束。
func (s *Supervisor) Connect(req ConnectRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	for {
		s.mu.Lock()
		prev := s.current
		if prev == nil || prev.finished() {
			break
		}
		if !prev.cancelled {
			s.mu.Unlock()
			return "", ErrAlreadyConnected
		}
		s.mu.Unlock()
		<-prev.done
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	handle := &sessionHandle{req: req, cancel: cancel, done: make(chan struct{})}
	runner := s.factory(req)

	go func() {
		defer close(handle.done)
		defer cancel()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("会话异常结束", zap.String("addr", req.Addr()), zap.Error(err))
		}
	}()

	s.current = handle
	s.logger.Info("会话已启动", zap.String("addr", req.Addr()), zap.Uint32("room", req.RoomID))
	return ResultConnecting, nil
}

// Disconnect 取消当前会话并立即返回，不等待其退出。
// 句柄保留到会话清理完成，期间的 Connect 会等待。
// 会话已自行结束但尚未被清理时同样返回 "Disconnected"。
func (s *Supervisor) Disconnect() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.cancelled {
		return "", ErrNotConnected
	}
	s.current.cancel()
	s.current.cancelled = true
	return ResultDisconnected, nil
}

// live 要求持有 mu。已 Disconnect 的会话对宿主视为不存在。
func (s *Supervisor) live() bool {
	return s.current != nil && !s.current.cancelled && !s.current.finished()
}

// IsConnected 当且仅当存在未被断开且尚未结束的会话时返回 true。
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live()
}

// Current 返回当前会话的连接参数。
func (s *Supervisor) Current() (ConnectRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		return ConnectRequest{}, false
	}
	return s.current.req, true
}

// Shutdown 用于进程退出：取消当前会话并在 ctx 期限内等待其清理完成。
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	handle := s.current
	s.current = nil
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	handle.cancel()
	select {
	case <-handle.done:
		s.logger.Info("会话已终止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
