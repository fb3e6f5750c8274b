package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"go-danmaku/internal/codec"
	"go-danmaku/internal/infra"
	"go-danmaku/internal/model"
)

// Dispatcher 处理收到的顶层帧：解压、拆子包，把文本消息交给 EventSink。
// 不持有连接状态，所有错误都是可恢复的。
type Dispatcher struct {
	sink    EventSink
	logger  *zap.Logger
	metrics *infra.Metrics
}

func NewDispatcher(sink EventSink, logger *zap.Logger, metrics *infra.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = infra.NopMetrics()
	}
	return &Dispatcher{
		sink:    sink,
		logger:  logger.With(zap.String("component", "dispatcher")),
		metrics: metrics,
	}
}

// Handle 按 opcode 与协议版本分派一条消息。
// 心跳回复只计数；认证回复仅在 code 非 0 时上报错误。
func (d *Dispatcher) Handle(ctx context.Context, msg *model.Message) {
	d.metrics.FramesReceived.WithLabelValues(strconv.FormatUint(uint64(msg.Header.Opcode), 10)).Inc()

	switch msg.Header.Opcode {
	case model.OpNormal:
	case model.OpAuthReply:
		d.handleAuthReply(ctx, msg.Payload)
		return
	default:
		return
	}

	switch msg.Header.ProtocolVersion {
	case model.VersionCompressedBrotli:
		decoded, err := codec.BrotliDecode(msg.Payload)
		if err != nil {
			d.metrics.ProtocolErrors.WithLabelValues("brotli").Inc()
			d.emit(ctx, model.NewErrorEvent(fmt.Sprintf("Brotli decompress error: %v", err)))
			return
		}
		d.depack(ctx, decoded)
	case model.VersionCompressedZlib:
		decoded, err := codec.ZlibDecode(msg.Payload)
		if err != nil {
			d.metrics.ProtocolErrors.WithLabelValues("zlib").Inc()
			d.emit(ctx, model.NewErrorEvent(fmt.Sprintf("Zlib decompress error: %v", err)))
			return
		}
		d.depack(ctx, decoded)
	default:
		d.parseMessage(ctx, msg.Payload)
	}
}

func (d *Dispatcher) depack(ctx context.Context, buf []byte) {
	n, err := codec.Demux(buf, func(payload []byte) {
		d.parseMessage(ctx, payload)
	})
	if err != nil {
		d.metrics.ProtocolErrors.WithLabelValues("sub_packet").Inc()
		d.logger.Warn("子包长度非法，丢弃本批剩余数据", zap.Int("delivered", n), zap.Error(err))
	}
}

// parseMessage 非法 UTF-8 只记录并丢弃。
func (d *Dispatcher) parseMessage(ctx context.Context, payload []byte) {
	if !utf8.Valid(payload) {
		d.metrics.ProtocolErrors.WithLabelValues("utf8").Inc()
		d.logger.Warn("消息不是合法的 UTF-8，已丢弃", zap.Int("size", len(payload)))
		return
	}
	cmd := commandOf(payload)
	label := cmd
	if label == "" {
		label = "unknown"
	}
	d.metrics.MessagesEmitted.WithLabelValues(label).Inc()
	d.emit(ctx, model.NewMessageEvent(string(payload), cmd))
}

func (d *Dispatcher) handleAuthReply(ctx context.Context, payload []byte) {
	code := gjson.GetBytes(payload, "code")
	if !code.Exists() || code.Int() == 0 {
		d.logger.Debug("认证成功")
		return
	}
	d.metrics.ProtocolErrors.WithLabelValues("auth").Inc()
	d.logger.Warn("服务端拒绝认证", zap.Int64("code", code.Int()))
	d.emit(ctx, model.NewErrorEvent(fmt.Sprintf("%v: code=%d", ErrAuthRejected, code.Int())))
}

func (d *Dispatcher) emit(ctx context.Context, evt model.Event) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Emit(ctx, evt); err != nil {
		d.logger.Debug("事件投递失败", zap.String("event", string(evt.Name)), zap.Error(err))
	}
}

// commandOf 提取 JSON 消息的 cmd 字段；形如 DANMU_MSG:4:0:2 的后缀被去掉。
func commandOf(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	r := gjson.GetBytes(payload, "cmd")
	if r.Type != gjson.String {
		return ""
	}
	cmd := r.Str
	if i := strings.IndexByte(cmd, ':'); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}
