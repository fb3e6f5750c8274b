package service

import "errors"

// 会话与调度层的错误类型，调用方用 errors.Is 判断。
var (
	ErrConnectFailure = errors.New("connect failed")
	ErrAuthSend       = errors.New("send auth failed")
	ErrTransport      = errors.New("transport error")
	ErrInvalidRequest = errors.New("invalid connect request")

	// 以下错误的文本直接展示给宿主
	ErrAuthRejected     = errors.New("Auth rejected")
	ErrAlreadyConnected = errors.New("Already connected")
	ErrNotConnected     = errors.New("Not connected")
)
