// =============================================================================
// 文件: internal/conn/types.go
// 描述: 面向连接层 - 统一类型定义
// =============================================================================
package conn

import (
	"fmt"
	"time"
)

// 默认参数
const (
	DefaultMSS           = 1024
	DefaultSendWindow    = 64 * 1024
	DefaultRecvBuffer    = 64 * 1024
	DefaultRTOMin        = 100 * time.Millisecond
	DefaultRTOMax        = 10 * time.Second
	DefaultRTOInit       = 200 * time.Millisecond
	DefaultMaxRetries    = 10
	DefaultTimeWait      = 2 * time.Second
	DefaultProbeInterval = 500 * time.Millisecond
)

// 错误定义
var (
	ErrConnClosed   = fmt.Errorf("连接已关闭")
	ErrConnNotReady = fmt.Errorf("连接未建立")
	ErrConnTimeout  = fmt.Errorf("连接超时")
	ErrRetryLimit   = fmt.Errorf("重传次数超限")
	ErrInvalidState = fmt.Errorf("无效状态")
)

// State 连接状态
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynRcvd
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	names := []string{
		"CLOSED", "LISTEN", "SYN_SENT", "SYN_RCVD", "ESTABLISHED",
		"FIN_WAIT_1", "FIN_WAIT_2", "CLOSE_WAIT", "LAST_ACK", "TIME_WAIT",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// Event 状态机事件
type Event uint8

const (
	EvListen Event = iota
	EvConnect
	EvClose
	EvRecvSyn
	EvRecvSynAck
	EvRecvAck
	EvRecvFin
	EvTimeout
)

func (e Event) String() string {
	names := []string{
		"listen", "connect", "close", "recv-syn",
		"recv-synack", "recv-ack", "recv-fin", "timeout",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return "unknown"
}

// Config 连接配置
type Config struct {
	MSS            int           // 最大段载荷
	SendWindow     int           // 本地发送窗口上限 (字节)
	RecvBuffer     int           // 本地接收缓冲容量 (字节，决定通告窗口)
	RTOMin         time.Duration // 重传超时下限
	RTOMax         time.Duration // 重传超时上限
	RTOInit        time.Duration // 初始重传超时 (有 RTT 样本前)
	MaxRetries     int           // 单个段的最大重传次数，超过即致命
	TimeWait       time.Duration // TIME_WAIT 宽限期
	ProbeInterval  time.Duration // 零窗口探测间隔
	ConnectTimeout time.Duration // 握手超时
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MSS:            DefaultMSS,
		SendWindow:     DefaultSendWindow,
		RecvBuffer:     DefaultRecvBuffer,
		RTOMin:         DefaultRTOMin,
		RTOMax:         DefaultRTOMax,
		RTOInit:        DefaultRTOInit,
		MaxRetries:     DefaultMaxRetries,
		TimeWait:       DefaultTimeWait,
		ProbeInterval:  DefaultProbeInterval,
		ConnectTimeout: 10 * time.Second,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.MSS < 1 {
		return fmt.Errorf("MSS 必须 >= 1: %d", c.MSS)
	}
	if c.SendWindow < c.MSS {
		return fmt.Errorf("发送窗口必须 >= MSS: %d < %d", c.SendWindow, c.MSS)
	}
	if c.RecvBuffer < c.MSS {
		return fmt.Errorf("接收缓冲必须 >= MSS: %d < %d", c.RecvBuffer, c.MSS)
	}
	if c.RTOMin <= 0 || c.RTOMax < c.RTOMin {
		return fmt.Errorf("RTO 区间无效: [%v, %v]", c.RTOMin, c.RTOMax)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("最大重传次数必须 >= 1: %d", c.MaxRetries)
	}
	return nil
}

// Stats 连接统计
type Stats struct {
	// 基本统计
	BytesSent        uint64
	BytesReceived    uint64
	SegmentsSent     uint64
	SegmentsReceived uint64

	// 重传统计 (按成因分列)
	Retransmits        uint64
	TimeoutRetransmits uint64
	DupAckRetransmits  uint64
	ZeroWindowProbes   uint64

	// 接收侧丢弃统计
	Corrupted   uint64
	Malformed   uint64
	Duplicates  uint64
	OutOfWindow uint64

	// ACK 统计
	AcksSent     uint64
	AcksReceived uint64
	DupAcks      uint64

	// 状态机
	IllegalTransitions uint64

	// RTT 统计
	SRTT   time.Duration
	RTTVar time.Duration
	RTO    time.Duration

	// 窗口
	UnackedBytes int
	PeerWindow   int
	LocalWindow  int

	State string
}
