package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-danmaku/internal/model"
)

type asyncTask struct {
	evt     model.Event
	attempt int
}

// AsyncSink 用内存队列 + 后台 worker 投递事件，Emit 从不阻塞调用方。
// - 队列满时丢弃事件并打日志
// - 下游失败时按指数退避重试，最多 MaxAttempts 次
type AsyncSink struct {
	next   EventSink
	logger *zap.Logger
	onDrop func()

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	timeout     time.Duration

	queue    chan asyncTask
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type AsyncSinkOptions struct {
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
	// OnDrop 在事件因队列满被丢弃时调用，可为 nil
	OnDrop func()
}

func NewAsyncSink(next EventSink, logger *zap.Logger, opts AsyncSinkOptions) *AsyncSink {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &AsyncSink{
		next:        next,
		logger:      logger.With(zap.String("component", "async_sink")),
		onDrop:      opts.OnDrop,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		timeout:     opts.Timeout,
		queue:       make(chan asyncTask, opts.QueueSize),
		stop:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Emit 入队后立即返回；永远返回 nil。
func (s *AsyncSink) Emit(_ context.Context, evt model.Event) error {
	select {
	case <-s.stop:
		return nil
	default:
	}
	select {
	case s.queue <- asyncTask{evt: evt}:
	default:
		s.logger.Warn("事件队列已满，丢弃事件", zap.String("event", string(evt.Name)), zap.String("id", evt.ID))
		if s.onDrop != nil {
			s.onDrop()
		}
	}
	return nil
}

// Stop 停止 worker，已入队的事件会先尽力投递完（不再重试）。
func (s *AsyncSink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func (s *AsyncSink) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case task := <-s.queue:
			s.handle(task)
		}
	}
}

func (s *AsyncSink) drain() {
	for {
		select {
		case task := <-s.queue:
			s.deliver(task.evt)
		default:
			return
		}
	}
}

func (s *AsyncSink) deliver(evt model.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.next.Emit(ctx, evt)
}

func (s *AsyncSink) handle(task asyncTask) {
	backoff := s.baseBackoff
	for {
		task.attempt++
		err := s.deliver(task.evt)
		if err == nil {
			return
		}
		s.logger.Debug("事件投递失败",
			zap.Int("attempt", task.attempt),
			zap.String("event", string(task.evt.Name)),
			zap.Error(err))
		if task.attempt >= s.maxAttempts {
			return
		}

		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-s.stop:
			return
		}
		backoff *= 2
	}
}
