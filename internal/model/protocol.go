package model

// 帧头固定 16 字节，大端序
const (
	HeaderSize   = 16
	MaxFrameSize = 10_000_000 // total_size 上限，超过视为致命错误
)

// Opcode 标识帧的用途
type Opcode uint32

const (
	OpHeartbeat      Opcode = 2 // 心跳
	OpHeartbeatReply Opcode = 3 // 心跳回复（携带人气值）
	OpNormal         Opcode = 5 // 普通消息（弹幕、礼物等）
	OpAuth           Opcode = 7 // 认证
	OpAuthReply      Opcode = 8 // 认证回复
)

// ProtocolVersion 决定 NORMAL 消息负载的解释方式
type ProtocolVersion uint16

const (
	VersionNormal           ProtocolVersion = 0 // 负载为纯文本
	VersionAuthHeartbeat    ProtocolVersion = 1 // 认证与心跳
	VersionCompressedZlib   ProtocolVersion = 2 // zlib 压缩，解压后为若干子包
	VersionCompressedBrotli ProtocolVersion = 3 // brotli 压缩，解压后为若干子包
)

// Header 对应线上的 16 字节帧头。
type Header struct {
	TotalSize       uint32
	HeaderSize      uint16
	ProtocolVersion ProtocolVersion
	Opcode          Opcode
	Sequence        uint32
}

// Message 为一个完整帧：帧头 + 负载。
type Message struct {
	Header  Header
	Payload []byte
}

// AuthPayload 为认证消息的 JSON 负载。
type AuthPayload struct {
	UID      uint64 `json:"uid"`
	RoomID   uint32 `json:"roomid"`
	ProtoVer uint32 `json:"protover"`
	Platform string `json:"platform"`
	Type     uint16 `json:"type"`
	Key      string `json:"key"`
}

// NewAuthPayload 填充固定字段（protover=3, platform=web, type=2）。
func NewAuthPayload(uid uint64, roomID uint32, token string) AuthPayload {
	return AuthPayload{
		UID:      uid,
		RoomID:   roomID,
		ProtoVer: 3,
		Platform: "web",
		Type:     2,
		Key:      token,
	}
}

func newMessage(opcode Opcode, sequence uint32, payload []byte) Message {
	return Message{
		Header: Header{
			TotalSize:       HeaderSize + uint32(len(payload)),
			HeaderSize:      HeaderSize,
			ProtocolVersion: VersionAuthHeartbeat,
			Opcode:          opcode,
			Sequence:        sequence,
		},
		Payload: payload,
	}
}

// Verification 构造认证消息。
func Verification(sequence uint32, authData []byte) Message {
	return newMessage(OpAuth, sequence, authData)
}

// Heartbeat 构造空负载的心跳消息。
func Heartbeat(sequence uint32) Message {
	return newMessage(OpHeartbeat, sequence, nil)
}
