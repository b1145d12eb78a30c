// =============================================================================
// 文件: internal/window/sender.go
// 描述: 窗口化重传引擎 - 发送端 (滑动窗口 + 超时重传)
// =============================================================================
package window

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/segment"
	"github.com/mrcgq/rdt/internal/timer"
)

// 累积策略的单一定时器键 (只追踪最老的未确认单元)
const cumulativeTimerKey = "window"

// unit 在途单元记录
type unit struct {
	seg     *segment.Segment
	sentAt  time.Time
	acked   bool
	retries int
}

// Sender 窗口化发送端
// 维护有界的在途未确认单元集合；窗口不变量 base <= nextSeq <= base+N
// 在所有可达状态下成立。所有窗口状态由单一互斥锁保护。
type Sender struct {
	ch     channel.Channel
	peer   net.Addr
	cfg    Config
	timers *timer.Service

	base    uint32
	nextSeq uint32
	units   map[uint32]*unit

	fatalErr error
	done     chan struct{}
	doneOnce sync.Once

	stats SenderStats
	mu    sync.Mutex
}

// NewSender 创建发送端
func NewSender(ch channel.Channel, peer net.Addr, cfg Config) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Sender{
		ch:     ch,
		peer:   peer,
		cfg:    cfg,
		timers: timer.NewService(),
		units:  make(map[uint32]*unit),
		done:   make(chan struct{}),
	}, nil
}

// Send 发送一个单元
// 窗口满时阻塞调用方，直到空间释放、ctx 取消或发送端致命停止。
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		if s.fatalErr != nil {
			err := s.fatalErr
			s.mu.Unlock()
			return err
		}

		if s.nextSeq < s.base+uint32(s.cfg.WindowSize) {
			s.sendNewLocked(payload)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return s.Err()
		case <-ticker.C:
		}
	}
}

// sendNewLocked 发送新单元 (需要持有锁)
func (s *Sender) sendNewLocked(payload []byte) {
	seq := s.nextSeq
	seg := segment.NewData(seq, 0, 0, payload)

	u := &unit{
		seg:    seg,
		sentAt: time.Now(),
	}
	s.units[seq] = u
	s.nextSeq++

	s.ch.Send(s.peer, seg.Encode())
	s.stats.PacketsSent++
	s.stats.BytesSent += uint64(len(payload))

	switch s.cfg.Policy {
	case Cumulative:
		// 单一定时器只在窗口从空变为非空时启动
		if s.base == seq {
			s.timers.Start(cumulativeTimerKey, s.cfg.Timeout, s.onCumulativeTimeout)
		}
	case Selective:
		key := seqKey(seq)
		s.timers.Start(key, s.cfg.Timeout, func() { s.onSelectiveTimeout(seq) })
	}
}

// HandleAck 处理确认
// 绝不阻塞：在接收/定时器上下文中快速完成。
func (s *Sender) HandleAck(ack uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatalErr != nil {
		return
	}

	switch s.cfg.Policy {
	case Cumulative:
		s.handleCumulativeAckLocked(ack)
	case Selective:
		s.handleSelectiveAckLocked(ack)
	}
	s.stats.Base = s.base
	s.stats.NextSeq = s.nextSeq
}

// handleCumulativeAckLocked 累积确认: ack 及之前的所有单元均被确认
func (s *Sender) handleCumulativeAckLocked(ack uint32) {
	// 从未发送过的序号，忽略
	if ack >= s.nextSeq {
		return
	}
	// 已确认过的旧值，记为重复确认
	if ack < s.base {
		s.stats.DupAcks++
		return
	}

	s.stats.AcksReceived++
	for seq := s.base; seq <= ack; seq++ {
		delete(s.units, seq)
	}
	s.base = ack + 1

	if s.base == s.nextSeq {
		s.timers.Cancel(cumulativeTimerKey)
	} else {
		// 仍有在途单元，为新的最老单元重启定时器
		s.timers.Start(cumulativeTimerKey, s.cfg.Timeout, s.onCumulativeTimeout)
	}
}

// handleSelectiveAckLocked 选择确认: 只确认这一个单元
func (s *Sender) handleSelectiveAckLocked(ack uint32) {
	u, ok := s.units[ack]
	if !ok {
		// 从未发送或已滑出窗口
		if ack < s.base {
			s.stats.DupAcks++
		}
		return
	}
	if u.acked {
		s.stats.DupAcks++
		return
	}

	s.stats.AcksReceived++
	u.acked = true
	s.timers.Cancel(seqKey(ack))

	// base 只在基单元被单独确认后滑过连续已确认前缀
	for {
		b, ok := s.units[s.base]
		if !ok || !b.acked {
			break
		}
		delete(s.units, s.base)
		s.base++
	}
}

// onCumulativeTimeout 累积策略超时: 重传整个窗口 [base, nextSeq)
func (s *Sender) onCumulativeTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatalErr != nil || s.base == s.nextSeq {
		return
	}
	s.stats.Timeouts++

	for seq := s.base; seq != s.nextSeq; seq++ {
		u, ok := s.units[seq]
		if !ok {
			continue
		}
		if u.retries >= s.cfg.MaxRetries {
			s.failLocked()
			return
		}
		u.retries++
		u.sentAt = time.Now()
		s.ch.Send(s.peer, u.seg.Encode())
		s.stats.Retransmits++
		s.stats.TimeoutRetransmits++
	}

	s.timers.Start(cumulativeTimerKey, s.cfg.Timeout, s.onCumulativeTimeout)
}

// onSelectiveTimeout 选择策略超时: 只重传超时的那个单元
func (s *Sender) onSelectiveTimeout(seq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatalErr != nil {
		return
	}

	u, ok := s.units[seq]
	if !ok || u.acked {
		return
	}
	if u.retries >= s.cfg.MaxRetries {
		s.failLocked()
		return
	}

	u.retries++
	u.sentAt = time.Now()
	s.ch.Send(s.peer, u.seg.Encode())
	s.stats.Retransmits++
	s.stats.TimeoutRetransmits++
	s.stats.Timeouts++

	s.timers.Start(seqKey(seq), s.cfg.Timeout, func() { s.onSelectiveTimeout(seq) })
}

// failLocked 致命停止: 取消全部定时器并唤醒所有阻塞调用 (需要持有锁)
func (s *Sender) failLocked() {
	s.fatalErr = ErrRetryLimit
	s.timers.CancelAll()
	s.doneOnce.Do(func() { close(s.done) })
}

// Run 运行确认接收循环，直到 ctx 取消或信道关闭
// 损坏和结构无效的到达一律当作未到达处理，绝不使循环崩溃。
func (s *Sender) Run(ctx context.Context) error {
	for {
		data, _, err := s.ch.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}

		seg, err := segment.Decode(data)
		if err != nil {
			continue
		}
		if seg.IsCorrupt() {
			continue
		}
		if seg.Kind() == segment.KindAck {
			s.HandleAck(seg.Ack)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Wait 等待全部在途单元被确认
func (s *Sender) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		idle := s.base == s.nextSeq
		err := s.fatalErr
		s.mu.Unlock()

		if err != nil {
			return err
		}
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return s.Err()
		case <-ticker.C:
		}
	}
}

// Err 致命错误 (无则为 nil)
func (s *Sender) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// InFlight 在途单元数量
func (s *Sender) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.nextSeq - s.base)
}

// GetStats 获取统计快照
func (s *Sender) GetStats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Base = s.base
	stats.NextSeq = s.nextSeq
	return stats
}

// Close 停止发送端并释放全部定时器
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers.CancelAll()
	if s.fatalErr == nil {
		s.fatalErr = ErrSenderDone
	}
	s.doneOnce.Do(func() { close(s.done) })
}

func seqKey(seq uint32) string {
	return strconv.FormatUint(uint64(seq), 10)
}
