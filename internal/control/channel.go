package control

import (
	"context"
	"sync"
)

// Receiver 处理通道送达的命令，由 proxy.Interceptor 实现。
type Receiver interface {
	OnControlMessage(ctx context.Context, cmd Command)
}

const defaultBuffer = 8

// Channel 是单个 App 的命令队列。Post 不阻塞，Run 在独立 goroutine 中按顺序投递。
type Channel struct {
	queue chan Command

	mu     sync.RWMutex
	closed bool
}

// NewChannel 创建带缓冲的命令通道；buffer <= 0 时使用默认值。
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Channel{queue: make(chan Command, buffer)}
}

// Post 投递命令，不等待处理结果。未知命令、通道已满或已关闭时返回错误。
func (c *Channel) Post(cmd Command) error {
	normalized, err := cmd.Normalize()
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.queue <- normalized:
		return nil
	default:
		return ErrChannelFull
	}
}

// Run 将命令逐条交给 receiver，直到 ctx 取消或通道关闭。
func (c *Channel) Run(ctx context.Context, receiver Receiver) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-c.queue:
			if !ok {
				return
			}
			receiver.OnControlMessage(ctx, cmd)
		}
	}
}

// Close 停止接收新命令；已排队的命令仍会被 Run 处理完。
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.queue)
}
