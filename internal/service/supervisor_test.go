package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-danmaku/internal/model"
)

// blockingRunner 运行到被取消或被 release 为止。
type blockingRunner struct {
	started   chan struct{}
	release   chan struct{}
	cancelled chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started:   make(chan struct{}),
		release:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	select {
	case <-ctx.Done():
		close(r.cancelled)
		return ctx.Err()
	case <-r.release:
		return nil
	}
}

func validRequest() ConnectRequest {
	return ConnectRequest{Host: "127.0.0.1", Port: 2243, UID: 123, RoomID: 456, Token: "abc"}
}

func TestSupervisorRejectsSecondConnect(t *testing.T) {
	first := newBlockingRunner()
	runners := []*blockingRunner{first}
	sup := NewSupervisor(func(ConnectRequest) Runner {
		r := runners[0]
		runners = runners[1:]
		return r
	}, nil)

	res, err := sup.Connect(validRequest())
	require.NoError(t, err)
	assert.Equal(t, "Connecting...", res)
	<-first.started

	_, err = sup.Connect(validRequest())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, "Already connected", err.Error())

	// 第一个会话不受影响
	assert.True(t, sup.IsConnected())
	select {
	case <-first.cancelled:
		t.Fatal("first session must not be cancelled")
	default:
	}

	res, err = sup.Disconnect()
	require.NoError(t, err)
	assert.Equal(t, "Disconnected", res)
	<-first.cancelled
	assert.False(t, sup.IsConnected())
}

func TestSupervisorDisconnectWithoutSession(t *testing.T) {
	sup := NewSupervisor(func(ConnectRequest) Runner { return newBlockingRunner() }, nil)

	_, err := sup.Disconnect()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "Not connected", err.Error())
	assert.False(t, sup.IsConnected())
}

func TestSupervisorAllowsReconnectAfterSessionEnds(t *testing.T) {
	first, second := newBlockingRunner(), newBlockingRunner()
	queue := []*blockingRunner{first, second}
	sup := NewSupervisor(func(ConnectRequest) Runner {
		r := queue[0]
		queue = queue[1:]
		return r
	}, nil)

	_, err := sup.Connect(validRequest())
	require.NoError(t, err)
	<-first.started
	close(first.release)

	assert.Eventually(t, func() bool { return !sup.IsConnected() }, time.Second, 10*time.Millisecond)

	_, err = sup.Connect(validRequest())
	require.NoError(t, err)
	<-second.started
	assert.True(t, sup.IsConnected())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	<-second.cancelled
	assert.False(t, sup.IsConnected())
}

func TestSupervisorValidatesRequest(t *testing.T) {
	sup := NewSupervisor(func(ConnectRequest) Runner { return newBlockingRunner() }, nil)

	_, err := sup.Connect(ConnectRequest{Port: 2243})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, sup.IsConnected())
}

func TestSupervisorWithRealSessionServerClose(t *testing.T) {
	srv := startServer(t)
	sink := newRecordingSink()
	sup := NewSupervisor(NewSessionFactory(testSessionConfig(time.Hour), sink, nil, nil), nil)

	_, err := sup.Connect(srv.request(t))
	require.NoError(t, err)
	conn := srv.accept(t)
	sink.waitFor(t, model.EventConnectionSuccess, waitTimeout)
	assert.True(t, sup.IsConnected())

	require.NoError(t, conn.Close())
	sink.waitFor(t, model.EventConnectionClosed, waitTimeout)
	assert.Eventually(t, func() bool { return !sup.IsConnected() }, waitTimeout, 10*time.Millisecond)

	// 会话已结束但句柄仍在，Disconnect 依旧返回成功
	res, err := sup.Disconnect()
	require.NoError(t, err)
	assert.Equal(t, ResultDisconnected, res)
}

// slowTeardownRunner 在取消后还要一段时间才退出，并统计同时运行的会话数。
type slowTeardownRunner struct {
	teardown time.Duration
	running  *atomic.Int32
	peak     *atomic.Int32
	started  chan struct{}
	finished chan struct{}
}

func (r *slowTeardownRunner) Run(ctx context.Context) error {
	defer close(r.finished)
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	close(r.started)
	<-ctx.Done()
	time.Sleep(r.teardown)
	return ctx.Err()
}

func TestSupervisorReconnectWaitsForTeardown(t *testing.T) {
	var running, peak atomic.Int32
	newRunner := func() *slowTeardownRunner {
		return &slowTeardownRunner{
			teardown: 100 * time.Millisecond,
			running:  &running,
			peak:     &peak,
			started:  make(chan struct{}),
			finished: make(chan struct{}),
		}
	}
	first, second := newRunner(), newRunner()
	queue := []*slowTeardownRunner{first, second}
	sup := NewSupervisor(func(ConnectRequest) Runner {
		r := queue[0]
		queue = queue[1:]
		return r
	}, nil)

	_, err := sup.Connect(validRequest())
	require.NoError(t, err)
	<-first.started

	res, err := sup.Disconnect()
	require.NoError(t, err)
	assert.Equal(t, ResultDisconnected, res)
	assert.False(t, sup.IsConnected())

	// 清理中的会话不能再次断开
	_, err = sup.Disconnect()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = sup.Connect(validRequest())
	require.NoError(t, err)
	select {
	case <-first.finished:
	default:
		t.Fatal("second session started before the first finished")
	}
	<-second.started
	assert.True(t, sup.IsConnected())
	assert.Equal(t, int32(1), peak.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	<-second.finished
}
