// =============================================================================
// 文件: internal/window/types.go
// 描述: 窗口化重传引擎 - 统一类型定义
// =============================================================================
package window

import (
	"fmt"
	"time"
)

// 默认参数
const (
	DefaultWindowSize = 8
	DefaultTimeout    = 500 * time.Millisecond
	DefaultMaxRetries = 10
)

// 错误定义
var (
	ErrRetryLimit  = fmt.Errorf("重传次数超限")
	ErrSenderDone  = fmt.Errorf("发送端已停止")
	ErrInvalidSize = fmt.Errorf("窗口大小必须 >= 1")
)

// Policy 确认策略
type Policy uint8

const (
	// Cumulative 累积确认 (go-back-N): 单一定时器，超时重传整个窗口
	Cumulative Policy = iota
	// Selective 选择确认 (selective repeat): 每单元独立定时器，超时只重传该单元
	Selective
)

func (p Policy) String() string {
	if p == Selective {
		return "selective"
	}
	return "cumulative"
}

// Config 引擎配置
type Config struct {
	Policy     Policy
	WindowSize int           // 窗口大小 N (>=1)
	Timeout    time.Duration // 重传超时
	MaxRetries int           // 单个单元的最大重传次数，超过即致命
}

// DefaultConfig 默认配置
func DefaultConfig(policy Policy) Config {
	return Config{
		Policy:     policy,
		WindowSize: DefaultWindowSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.WindowSize < 1 {
		return ErrInvalidSize
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("超时必须为正值: %v", c.Timeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("最大重传次数必须 >= 1: %d", c.MaxRetries)
	}
	return nil
}

// SenderStats 发送端统计
// 超时触发与重复确认触发的重传分开计数；本引擎不做快速重传，
// DupAckRetransmits 始终为零，保留字段供上层区分成因。
type SenderStats struct {
	PacketsSent        uint64
	BytesSent          uint64
	Retransmits        uint64
	TimeoutRetransmits uint64
	DupAckRetransmits  uint64
	Timeouts           uint64
	AcksReceived       uint64
	DupAcks            uint64
	Base               uint32
	NextSeq            uint32
}

// ReceiverStats 接收端统计
type ReceiverStats struct {
	PacketsReceived uint64
	Delivered       uint64
	Duplicates      uint64
	StaleDuplicates uint64
	OutOfOrder      uint64
	OutOfWindow     uint64
	Corrupted       uint64
	Malformed       uint64
	AcksSent        uint64
}

// DeliverFunc 有序交付回调
// 回调在接收循环上下文执行，必须快速返回。
type DeliverFunc func(payload []byte)
