package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-danmaku/internal/codec"
	"go-danmaku/internal/model"
)

// recordingSink 记录所有事件，并提供按顺序等待的能力。
type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
	ch     chan model.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan model.Event, 1024)}
}

func (r *recordingSink) Emit(_ context.Context, evt model.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	select {
	case r.ch <- evt:
	default:
	}
	return nil
}

func (r *recordingSink) snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// waitFor 丢弃其他事件，直到收到 name 或超时。
func (r *recordingSink) waitFor(t *testing.T, name model.EventName, timeout time.Duration) model.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-r.ch:
			if evt.Name == name {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %v", name, eventNames(r.snapshot()))
			return model.Event{}
		}
	}
}

func eventNames(events []model.Event) []model.EventName {
	names := make([]model.EventName, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	return names
}

func messagePayloads(events []model.Event) []string {
	var out []string
	for _, e := range events {
		if m, ok := e.Data.(model.MessageEvent); ok {
			out = append(out, m.Payload)
		}
	}
	return out
}

func normalMessage(ver model.ProtocolVersion, payload []byte) *model.Message {
	return &model.Message{
		Header: model.Header{
			TotalSize:       uint32(model.HeaderSize + len(payload)),
			HeaderSize:      model.HeaderSize,
			ProtocolVersion: ver,
			Opcode:          model.OpNormal,
		},
		Payload: payload,
	}
}

// subPackets 把多段文本拼成解压后的子包批次。
func subPackets(bodies ...string) []byte {
	var buf []byte
	for _, b := range bodies {
		buf = codec.Append(buf, *normalMessage(model.VersionNormal, []byte(b)))
	}
	return buf
}
