// Package control carries out-of-band commands from the hosting application
// to an app's interceptor. Commands are fire-and-forget: there is no
// acknowledgement and no response payload.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type 是命令类型。
type Type string

// TypeSkipWaiting 要求立即激活已安装但仍在等待的代际。
const TypeSkipWaiting Type = "SKIP_WAITING"

var (
	// ErrUnknownCommand 表示无法识别的命令类型。
	ErrUnknownCommand = errors.New("unknown control command")
	// ErrChannelFull 表示通道缓冲区已满，命令被丢弃。
	ErrChannelFull = errors.New("control channel full")
	// ErrChannelClosed 表示通道已停止接收。
	ErrChannelClosed = errors.New("control channel closed")
)

// Command 是通道上传递的消息，线上格式为 `{"type":"SKIP_WAITING"}`。
type Command struct {
	Type Type `json:"type"`
}

// Parse 解码 JSON 命令并校验类型。
func Parse(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode control command: %w", err)
	}
	return cmd.Normalize()
}

// Normalize 统一大小写并校验命令类型。
func (c Command) Normalize() (Command, error) {
	c.Type = Type(strings.ToUpper(strings.TrimSpace(string(c.Type))))
	switch c.Type {
	case TypeSkipWaiting:
		return c, nil
	default:
		return c, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}
}
