// =============================================================================
// 文件: internal/segment/segment.go
// 描述: 段编解码与完整性校验 (唯一的线路格式定义位置)
// =============================================================================
package segment

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// 线路格式常量
const (
	// 头部大小: Flags(1) + Seq(4) + Ack(4) + Window(2) + Checksum(4) = 15 bytes
	HeaderSize   = 15
	ChecksumSize = 4

	// 标志位 (1 byte)
	FlagFIN uint8 = 0x01
	FlagSYN uint8 = 0x02
	FlagACK uint8 = 0x10

	validFlags = FlagFIN | FlagSYN | FlagACK
)

// 错误定义
var (
	ErrMalformed = fmt.Errorf("段结构无效")
)

// Kind 段类型 (由标志位和载荷在解析时推导)
type Kind uint8

const (
	KindData Kind = iota
	KindAck
	KindSyn
	KindSynAck
	KindFin
	KindFinAck
)

func (k Kind) String() string {
	names := []string{"DATA", "ACK", "SYN", "SYN-ACK", "FIN", "FIN-ACK"}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// Segment 传输段
// Seq/Ack 在窗口引擎中是包序号，在连接层中是字节偏移；均在 2^32 处回绕。
type Segment struct {
	Flags    uint8  // 标志位
	Seq      uint32 // 序列号
	Ack      uint32 // 确认号 (确认此值之前的所有字节/包)
	Window   uint16 // 接收方通告窗口 (仅连接层使用)
	Checksum uint32 // 完整性摘要
	Payload  []byte // 有效载荷
}

// checksum 计算完整性摘要: 对除校验和外的所有字段取 BLAKE2b-256 的前 4 字节
func checksum(flags uint8, seq, ack uint32, window uint16, payload []byte) uint32 {
	buf := make([]byte, HeaderSize-ChecksumSize, HeaderSize-ChecksumSize+len(payload))
	buf[0] = flags
	binary.BigEndian.PutUint32(buf[1:5], seq)
	binary.BigEndian.PutUint32(buf[5:9], ack)
	binary.BigEndian.PutUint16(buf[9:11], window)
	buf = append(buf, payload...)

	sum := blake2b.Sum256(buf)
	return binary.BigEndian.Uint32(sum[:4])
}

// Encode 编码段 (确定性字节序列，校验和在编码时计算)
func (s *Segment) Encode() []byte {
	buf := make([]byte, HeaderSize+len(s.Payload))
	buf[0] = s.Flags
	binary.BigEndian.PutUint32(buf[1:5], s.Seq)
	binary.BigEndian.PutUint32(buf[5:9], s.Ack)
	binary.BigEndian.PutUint16(buf[9:11], s.Window)

	s.Checksum = checksum(s.Flags, s.Seq, s.Ack, s.Window, s.Payload)
	binary.BigEndian.PutUint32(buf[11:15], s.Checksum)

	copy(buf[HeaderSize:], s.Payload)
	return buf
}

// Decode 解码段
// 结构无效 (太短、未知标志位、非法标志组合) 返回 ErrMalformed；
// 校验和不匹配是独立的失败模式，由 IsCorrupt 判定。
func Decode(data []byte) (*Segment, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: 数据太短 %d < %d", ErrMalformed, len(data), HeaderSize)
	}

	flags := data[0]
	if flags & ^validFlags != 0 {
		return nil, fmt.Errorf("%w: 未知标志位 0x%02x", ErrMalformed, flags)
	}
	if flags&FlagSYN != 0 && flags&FlagFIN != 0 {
		return nil, fmt.Errorf("%w: SYN+FIN 非法组合", ErrMalformed)
	}

	s := &Segment{
		Flags:    flags,
		Seq:      binary.BigEndian.Uint32(data[1:5]),
		Ack:      binary.BigEndian.Uint32(data[5:9]),
		Window:   binary.BigEndian.Uint16(data[9:11]),
		Checksum: binary.BigEndian.Uint32(data[11:15]),
	}

	if len(data) > HeaderSize {
		s.Payload = make([]byte, len(data)-HeaderSize)
		copy(s.Payload, data[HeaderSize:])
	}

	return s, nil
}

// IsCorrupt 校验段是否被破坏 (纯函数)
// 损坏的段绝不能交付应用层，其 Seq/Ack 也不可信。
func (s *Segment) IsCorrupt() bool {
	return s.Checksum != checksum(s.Flags, s.Seq, s.Ack, s.Window, s.Payload)
}

// Kind 推导段类型
func (s *Segment) Kind() Kind {
	switch {
	case s.Flags&FlagSYN != 0 && s.Flags&FlagACK != 0:
		return KindSynAck
	case s.Flags&FlagSYN != 0:
		return KindSyn
	case s.Flags&FlagFIN != 0 && s.Flags&FlagACK != 0:
		return KindFinAck
	case s.Flags&FlagFIN != 0:
		return KindFin
	case len(s.Payload) > 0:
		return KindData
	default:
		return KindAck
	}
}

// HasFlag 检查标志位
func (s *Segment) HasFlag(flag uint8) bool {
	return s.Flags&flag != 0
}

// NewData 创建数据段
func NewData(seq, ack uint32, window uint16, payload []byte) *Segment {
	s := &Segment{
		Flags:  FlagACK,
		Seq:    seq,
		Ack:    ack,
		Window: window,
	}
	if len(payload) > 0 {
		s.Payload = make([]byte, len(payload))
		copy(s.Payload, payload)
	}
	return s
}

// NewAck 创建纯 ACK 段
func NewAck(ack uint32, window uint16) *Segment {
	return &Segment{
		Flags:  FlagACK,
		Ack:    ack,
		Window: window,
	}
}

// NewSyn 创建 SYN 段 (连接建立第一步)
func NewSyn(seq uint32, window uint16) *Segment {
	return &Segment{
		Flags:  FlagSYN,
		Seq:    seq,
		Window: window,
	}
}

// NewSynAck 创建 SYN-ACK 段 (握手第二步)
func NewSynAck(seq, ack uint32, window uint16) *Segment {
	return &Segment{
		Flags:  FlagSYN | FlagACK,
		Seq:    seq,
		Ack:    ack,
		Window: window,
	}
}

// NewFin 创建 FIN 段
func NewFin(seq, ack uint32) *Segment {
	return &Segment{
		Flags: FlagFIN | FlagACK,
		Seq:   seq,
		Ack:   ack,
	}
}

func (s *Segment) String() string {
	return fmt.Sprintf("[%s | Seq:%d Ack:%d | Win:%d | Len:%d]",
		s.Kind(), s.Seq, s.Ack, s.Window, len(s.Payload))
}
