// =============================================================================
// 文件: internal/window/receiver.go
// 描述: 窗口化重传引擎 - 接收端 (乱序缓冲与有序交付)
// =============================================================================
package window

import (
	"context"
	"encoding/binary"
	"net"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/segment"
)

// 已交付序号集合的布隆过滤器参数
const (
	seenExpectedItems = 100000
	seenFalsePositive = 0.0001
)

// Receiver 窗口化接收端
// 累积策略: 只接受恰好等于期望序号的单元，其余丢弃并重发上一个累积确认。
// 选择策略: 接受 [rcvBase, rcvBase+N) 内的任何单元，单独确认并缓冲乱序者，
// 每次接受后从 rcvBase 向前排空连续段。
type Receiver struct {
	ch  channel.Channel
	cfg Config

	deliver DeliverFunc

	// 累积策略状态
	expected uint32
	hasAcked bool
	lastAck  uint32

	// 选择策略状态
	rcvBase uint32
	buffer  map[uint32][]byte // 乱序重组缓冲: 绝不包含已交付的序号

	// 已交付序号的概率集合，用于区分旧重复与从未见过的越窗到达
	seen *bloom.BloomFilter

	stats ReceiverStats
	mu    sync.Mutex
}

// NewReceiver 创建接收端
func NewReceiver(ch channel.Channel, cfg Config, deliver DeliverFunc) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Receiver{
		ch:      ch,
		cfg:     cfg,
		deliver: deliver,
		buffer:  make(map[uint32][]byte),
		seen:    bloom.NewWithEstimates(seenExpectedItems, seenFalsePositive),
	}, nil
}

// Run 运行接收循环，直到 ctx 取消或信道关闭
func (r *Receiver) Run(ctx context.Context) error {
	for {
		data, from, err := r.ch.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}

		r.Handle(data, from)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Handle 处理一个入站数据报
// 损坏与结构无效是独立的失败模式，都视同该单元从未有效到达。
func (r *Receiver) Handle(data []byte, from net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.PacketsReceived++

	seg, err := segment.Decode(data)
	if err != nil {
		r.stats.Malformed++
		return
	}

	if seg.IsCorrupt() {
		r.stats.Corrupted++
		// 累积策略下重发上一个有效确认，作为隐式否定反馈
		if r.cfg.Policy == Cumulative && r.hasAcked {
			r.sendAckLocked(from, r.lastAck)
		}
		return
	}

	if seg.Kind() != segment.KindData {
		return
	}

	switch r.cfg.Policy {
	case Cumulative:
		r.handleCumulativeLocked(seg, from)
	case Selective:
		r.handleSelectiveLocked(seg, from)
	}
}

// handleCumulativeLocked 累积策略接收
func (r *Receiver) handleCumulativeLocked(seg *segment.Segment, from net.Addr) {
	if seg.Seq == r.expected {
		// 期望单元: 立即交付并推进
		r.deliverLocked(seg.Seq, seg.Payload)
		r.expected++

		r.lastAck = seg.Seq
		r.hasAcked = true
		r.sendAckLocked(from, seg.Seq)
		return
	}

	// 旧的或超前的都丢弃，重发上一个累积确认
	// (重复反馈，不是重传请求)
	if seg.Seq < r.expected {
		r.stats.Duplicates++
		if r.markSeenLocked(seg.Seq) {
			r.stats.StaleDuplicates++
		}
	} else {
		r.stats.OutOfOrder++
	}

	if r.hasAcked {
		r.sendAckLocked(from, r.lastAck)
	}
}

// handleSelectiveLocked 选择策略接收
func (r *Receiver) handleSelectiveLocked(seg *segment.Segment, from net.Addr) {
	seq := seg.Seq
	n := uint32(r.cfg.WindowSize)

	// 窗口之前: 旧重复，重新单独确认 (对端可能没收到之前的确认)
	if seq < r.rcvBase {
		r.stats.Duplicates++
		if r.markSeenLocked(seq) {
			r.stats.StaleDuplicates++
		}
		r.sendAckLocked(from, seq)
		return
	}

	// 窗口之后: 越窗丢弃
	if seq >= r.rcvBase+n {
		r.stats.OutOfWindow++
		return
	}

	// 窗口内: 无论顺序如何均单独确认
	if _, dup := r.buffer[seq]; dup {
		r.stats.Duplicates++
		r.sendAckLocked(from, seq)
		return
	}

	payload := make([]byte, len(seg.Payload))
	copy(payload, seg.Payload)
	r.buffer[seq] = payload

	if seq != r.rcvBase {
		r.stats.OutOfOrder++
	}
	r.sendAckLocked(from, seq)

	// 从 rcvBase 向前排空连续可交付段
	for {
		data, ok := r.buffer[r.rcvBase]
		if !ok {
			break
		}
		delete(r.buffer, r.rcvBase)
		r.deliverLocked(r.rcvBase, data)
		r.rcvBase++
	}
}

// deliverLocked 向应用交付并记录序号
func (r *Receiver) deliverLocked(seq uint32, payload []byte) {
	r.stats.Delivered++
	r.seen.Add(seqBytes(seq))
	if r.deliver != nil {
		r.deliver(payload)
	}
}

// markSeenLocked 查询序号是否曾被交付 (概率性，误报率极低)
func (r *Receiver) markSeenLocked(seq uint32) bool {
	return r.seen.Test(seqBytes(seq))
}

// sendAckLocked 发送确认
// 累积策略: ack 值确认它及之前的全部单元；选择策略: 只确认该单元。
func (r *Receiver) sendAckLocked(to net.Addr, ack uint32) {
	seg := segment.NewAck(ack, 0)
	r.ch.Send(to, seg.Encode())
	r.stats.AcksSent++
}

// Expected 当前期望/基序号 (测试与统计用)
func (r *Receiver) Expected() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Policy == Selective {
		return r.rcvBase
	}
	return r.expected
}

// Buffered 乱序缓冲中的单元数量
func (r *Receiver) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// GetStats 获取统计快照
func (r *Receiver) GetStats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func seqBytes(seq uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], seq)
	return b[:]
}
