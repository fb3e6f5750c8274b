package codec

import (
	"encoding/binary"
	"errors"
	"io"

	"go-danmaku/internal/model"
)

const (
	defaultBufSize = 4096
	minReadSize    = 512
)

// Reader 从字节流中按帧读取消息，内部缓冲未凑齐的数据。
// 非并发安全，应只由一个 goroutine 使用。
type Reader struct {
	rd   io.Reader
	buf  []byte
	r, w int
}

func NewReader(rd io.Reader) *Reader {
	return &Reader{rd: rd, buf: make([]byte, defaultBufSize)}
}

// Buffered 返回已缓冲但尚未解码的字节数。
func (b *Reader) Buffered() int {
	return b.w - b.r
}

// ReadMessage 阻塞直到读到一个完整帧。
// 在帧边界处遇到 EOF 返回 io.EOF；帧中途断开返回 io.ErrUnexpectedEOF。
func (b *Reader) ReadMessage() (*model.Message, error) {
	for {
		msg, n, err := Decode(b.buf[b.r:b.w])
		if err != nil {
			return nil, err
		}
		if msg != nil {
			b.r += n
			if b.r == b.w {
				b.r, b.w = 0, 0
			}
			return msg, nil
		}

		b.reserve(b.missing())
		n, err = b.rd.Read(b.buf[b.w:])
		b.w += n
		if n > 0 {
			continue
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && b.Buffered() > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

// missing 估算凑齐当前帧还差多少字节。
func (b *Reader) missing() int {
	unread := b.Buffered()
	if unread < model.HeaderSize {
		return model.HeaderSize - unread
	}
	// Decode 已校验过 total_size 上限
	total := int(binary.BigEndian.Uint32(b.buf[b.r : b.r+4]))
	return total - unread
}

// reserve 保证 buf 尾部至少有 need 字节（且不少于 minReadSize）的空闲空间。
func (b *Reader) reserve(need int) {
	if need < minReadSize {
		need = minReadSize
	}
	if len(b.buf)-b.w >= need {
		return
	}
	if b.r > 0 {
		copy(b.buf, b.buf[b.r:b.w])
		b.w -= b.r
		b.r = 0
		if len(b.buf)-b.w >= need {
			return
		}
	}
	size := 2 * len(b.buf)
	if size < b.w+need {
		size = b.w + need
	}
	grown := make([]byte, size)
	copy(grown, b.buf[:b.w])
	b.buf = grown
}
