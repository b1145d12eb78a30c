// =============================================================================
// 文件: internal/channel/channel.go
// 描述: 数据报信道抽象与 UDP 实现
// =============================================================================
package channel

import (
	"fmt"
	"net"
	"sync/atomic"
)

const (
	// 单个数据报读缓冲大小
	maxDatagramSize = 65535
)

// 错误定义
var (
	ErrClosed = fmt.Errorf("信道已关闭")
)

// Channel 数据报信道
// 发送是发后即忘；接收阻塞直到有数据报到达。引擎绝不假设该接口
// 提供有序或无损的交付：数据报可能被丢弃、破坏、延迟或重复。
type Channel interface {
	// Send 发送数据报 (发后即忘)
	Send(addr net.Addr, p []byte) error

	// Recv 接收数据报 (阻塞)
	Recv() ([]byte, net.Addr, error)

	// LocalAddr 本地地址
	LocalAddr() net.Addr

	// Close 关闭信道，唤醒阻塞中的 Recv
	Close() error
}

// UDPChannel UDP 数据报信道
type UDPChannel struct {
	conn   *net.UDPConn
	closed int32
}

// ListenUDP 创建绑定到 addr 的 UDP 信道 (如 "127.0.0.1:0")
func ListenUDP(addr string) (*UDPChannel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("解析地址失败: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("绑定 UDP 失败: %w", err)
	}

	return &UDPChannel{conn: conn}, nil
}

// Send 发送数据报
func (c *UDPChannel) Send(addr net.Addr, p []byte) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrClosed
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("非 UDP 地址: %v", addr)
	}

	_, err := c.conn.WriteToUDP(p, udpAddr)
	return err
}

// Recv 接收数据报
func (c *UDPChannel) Recv() ([]byte, net.Addr, error) {
	buf := make([]byte, maxDatagramSize)
	n, from, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if atomic.LoadInt32(&c.closed) != 0 {
			return nil, nil, ErrClosed
		}
		return nil, nil, err
	}
	return buf[:n], from, nil
}

// LocalAddr 本地地址
func (c *UDPChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close 关闭信道
func (c *UDPChannel) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.conn.Close()
}
