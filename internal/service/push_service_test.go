package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-danmaku/internal/model"
)

type stubConn struct {
	written []interface{}
	err     error
}

func (c *stubConn) WriteJSON(v interface{}) error {
	if c.err != nil {
		return c.err
	}
	c.written = append(c.written, v)
	return nil
}

func TestHubSinkBroadcastsToAllClients(t *testing.T) {
	conns := NewConnectionManager()
	a, b := &stubConn{}, &stubConn{}
	conns.Add("a", a)
	conns.Add("b", b)
	sink := NewHubSink(conns)

	evt := model.NewMessageEvent("hello", "")
	require.NoError(t, sink.Emit(context.Background(), evt))

	assert.Equal(t, []interface{}{evt}, a.written)
	assert.Equal(t, []interface{}{evt}, b.written)
}

func TestHubSinkContinuesAfterWriteFailure(t *testing.T) {
	conns := NewConnectionManager()
	writeErr := errors.New("broken pipe")
	conns.Add("a-broken", &stubConn{err: writeErr})
	healthy := &stubConn{}
	conns.Add("b-healthy", healthy)

	err := NewHubSink(conns).Emit(context.Background(), model.ClosedEvent())
	assert.ErrorIs(t, err, writeErr)
	assert.Len(t, healthy.written, 1)
}

func TestConnectionManagerLifecycle(t *testing.T) {
	conns := NewConnectionManager()
	conns.Add("z", &stubConn{})
	conns.Add("a", &stubConn{})
	assert.Equal(t, []string{"a", "z"}, conns.ListIDs())
	assert.Equal(t, 2, conns.Len())

	conns.Remove("a")
	assert.Nil(t, conns.Get("a"))
	assert.Equal(t, 1, conns.Len())
}
