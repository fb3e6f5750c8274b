// Package codec 实现弹幕协议的帧编解码、解压与子包拆分。
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go-danmaku/internal/model"
)

var (
	// ErrOversizedFrame total_size 超过 model.MaxFrameSize。
	ErrOversizedFrame = errors.New("message too large")
	// ErrInvalidHeader 帧头长度字段自相矛盾，无法确定帧边界。
	ErrInvalidHeader = errors.New("invalid frame header")
)

// ParseHeader 读取 buf 前 16 字节的帧头；不足 16 字节时 ok=false。
func ParseHeader(buf []byte) (h model.Header, ok bool) {
	if len(buf) < model.HeaderSize {
		return h, false
	}
	return model.Header{
		TotalSize:       binary.BigEndian.Uint32(buf[0:4]),
		HeaderSize:      binary.BigEndian.Uint16(buf[4:6]),
		ProtocolVersion: model.ProtocolVersion(binary.BigEndian.Uint16(buf[6:8])),
		Opcode:          model.Opcode(binary.BigEndian.Uint32(buf[8:12])),
		Sequence:        binary.BigEndian.Uint32(buf[12:16]),
	}, true
}

// Decode 从 buf 开头解析一帧，返回消息与消耗的字节数。
// 数据不足（不足 16 字节或不足 total_size）时返回 (nil, 0, nil)，不消耗任何字节。
func Decode(buf []byte) (*model.Message, int, error) {
	h, ok := ParseHeader(buf)
	if !ok {
		return nil, 0, nil
	}
	if h.TotalSize > model.MaxFrameSize {
		return nil, 0, fmt.Errorf("%w: total_size=%d", ErrOversizedFrame, h.TotalSize)
	}
	// total_size 小于帧头时游标无法前进，只能视为坏帧
	if h.TotalSize < model.HeaderSize || uint32(h.HeaderSize) > h.TotalSize {
		return nil, 0, fmt.Errorf("%w: total_size=%d header_size=%d", ErrInvalidHeader, h.TotalSize, h.HeaderSize)
	}
	total := int(h.TotalSize)
	if len(buf) < total {
		return nil, 0, nil
	}

	payload := make([]byte, total-int(h.HeaderSize))
	copy(payload, buf[h.HeaderSize:total])
	return &model.Message{Header: h, Payload: payload}, total, nil
}

// Append 将 msg 编码后追加到 dst。
func Append(dst []byte, msg model.Message) []byte {
	h := msg.Header
	dst = binary.BigEndian.AppendUint32(dst, h.TotalSize)
	dst = binary.BigEndian.AppendUint16(dst, h.HeaderSize)
	dst = binary.BigEndian.AppendUint16(dst, uint16(h.ProtocolVersion))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.Opcode))
	dst = binary.BigEndian.AppendUint32(dst, h.Sequence)
	return append(dst, msg.Payload...)
}

// Encode 编码单个消息，输出长度等于 total_size。
func Encode(msg model.Message) []byte {
	return Append(make([]byte, 0, model.HeaderSize+len(msg.Payload)), msg)
}
