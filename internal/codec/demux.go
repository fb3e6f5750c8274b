package codec

import (
	"errors"
	"fmt"

	"go-danmaku/internal/model"
)

// ErrMalformedSubPacket 子包长度字段越界，本批剩余数据被丢弃。
var ErrMalformedSubPacket = errors.New("invalid sub packet size")

// Demux 按顺序把 buf 中拼接的子包负载交给 fn，返回已交付的子包数。
// 末尾被截断的子包（包括不足 16 字节的残余）静默忽略；帧头长度字段自相矛盾时
// 停止处理本批剩余部分并返回 ErrMalformedSubPacket。子包不再嵌套压缩。
func Demux(buf []byte, fn func(payload []byte)) (int, error) {
	offset, count := 0, 0
	for offset < len(buf) {
		h, ok := ParseHeader(buf[offset:])
		if !ok {
			break
		}
		total := int(h.TotalSize)
		if total < model.HeaderSize || int(h.HeaderSize) > total {
			return count, fmt.Errorf("%w: offset=%d total_size=%d header_size=%d",
				ErrMalformedSubPacket, offset, h.TotalSize, h.HeaderSize)
		}
		if offset+total > len(buf) {
			break
		}
		fn(buf[offset+int(h.HeaderSize) : offset+total])
		count++
		offset += total
	}
	return count, nil
}
