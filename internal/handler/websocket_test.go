package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-danmaku/internal/model"
	"go-danmaku/internal/service"
)

func newWSServer(t *testing.T) (*service.ConnectionManager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conns := service.NewConnectionManager()
	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(conns, nil).HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return conns, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketReceivesBroadcastEvents(t *testing.T) {
	conns, url := newWSServer(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return conns.Len() == 2 }, time.Second, 10*time.Millisecond)

	hub := service.NewHubSink(conns)
	evt := model.NewMessageEvent(`{"cmd":"DANMU_MSG"}`, "DANMU_MSG")
	require.NoError(t, hub.Emit(context.Background(), evt))

	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]any
		require.NoError(t, c.ReadJSON(&got))
		assert.Equal(t, evt.ID, got["id"])
		assert.Equal(t, "message-received", got["event"])
		data := got["data"].(map[string]any)
		assert.Equal(t, "DANMU_MSG", data["cmd"])
	}
}

func TestWebSocketUnregistersOnClose(t *testing.T) {
	conns, url := newWSServer(t)
	c := dial(t, url)
	require.Eventually(t, func() bool { return conns.Len() == 1 }, time.Second, 10*time.Millisecond)

	// 客户端数据帧会被忽略
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool { return conns.Len() == 0 }, time.Second, 10*time.Millisecond)
}
