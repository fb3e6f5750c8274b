package service

import (
	"context"

	"go-danmaku/internal/model"
)

// HubSink 将事件推送到所有在线的 WebSocket 客户端，最佳努力发送。
type HubSink struct {
	conns *ConnectionManager
}

func NewHubSink(conns *ConnectionManager) *HubSink {
	return &HubSink{conns: conns}
}

// Emit 逐个写入客户端；缺失连接或写失败时继续其他客户端，返回首个错误。
func (s *HubSink) Emit(_ context.Context, evt model.Event) error {
	var err error
	for _, id := range s.conns.ListIDs() {
		conn := s.conns.Get(id)
		if conn == nil {
			continue // 期间已断开
		}
		if curErr := conn.WriteJSON(evt); curErr != nil && err == nil {
			err = curErr
		}
	}
	return err
}
