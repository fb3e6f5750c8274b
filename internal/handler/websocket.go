package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-danmaku/internal/service"
)

const (
	readDeadline = 90 * time.Second // 允许 ping 丢 2 次（30s/次）
	pingPeriod   = 30 * time.Second
	writeTimeout = 10 * time.Second // 写超时防止阻塞
	readLimit    = int64(4 << 10)   // 客户端只会发控制帧，4KB 足够
)

// WebSocketHandler 负责握手、登记事件订阅连接以及保活。
type WebSocketHandler struct {
	connManager *service.ConnectionManager
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewWebSocketHandler 创建 Handler，事件由 service.HubSink 写入 connManager 中的连接。
func NewWebSocketHandler(connManager *service.ConnectionManager, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		connManager: connManager,
		upgrader: websocket.Upgrader{
			// 生产环境需校验 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(zap.String("component", "websocket")),
	}
}

// HandleWebSocket 提供给 Gin 的路由函数。
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("升级 WebSocket 失败", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	h.connManager.Add(clientID, &wsClient{conn: conn})
	h.logger.Info("事件订阅者已连接", zap.String("client", clientID), zap.Int("online", h.connManager.Len()))

	// 独立 goroutine 读消息，避免阻塞握手返回
	go h.readLoop(clientID, conn)
}

// readLoop 只处理控制帧与超时；客户端发来的数据帧直接丢弃。
func (h *WebSocketHandler) readLoop(clientID string, conn *websocket.Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.connManager.Remove(clientID)
		_ = conn.Close()
		h.logger.Info("事件订阅者断开", zap.String("client", clientID))
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		// 客户端 Pong 刷新超时
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go pingLoop(conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// WriteControl 可与其他写方法并发调用
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// wsClient 串行化数据帧写入，并统一设置写超时。
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}
