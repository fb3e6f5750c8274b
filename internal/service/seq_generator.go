package service

import "sync/atomic"

// SeqGenerator 生成连接内的帧序号。
type SeqGenerator interface {
	Next() uint32
}

// CounterSeqGenerator 从 start 开始单调递增；认证消息固定占用 1，心跳从 2 开始。
type CounterSeqGenerator struct {
	next atomic.Uint32
}

func NewCounterSeqGenerator(start uint32) *CounterSeqGenerator {
	g := &CounterSeqGenerator{}
	g.next.Store(start)
	return g
}

// Next 返回当前序号并自增。
func (g *CounterSeqGenerator) Next() uint32 {
	return g.next.Add(1) - 1
}
