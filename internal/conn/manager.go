// =============================================================================
// 文件: internal/conn/manager.go
// 描述: 面向连接层 - 监听器 (多连接分发) 与主动拨号
// =============================================================================
package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/segment"
)

const (
	acceptQueueSize = 64
	cleanupInterval = 5 * time.Second
)

// Listener 连接监听器
// 共享一条底层信道，按远端地址把入站段分发给对应连接；
// 未知地址的 SYN 触发新连接的被动打开。
type Listener struct {
	ch  channel.Channel
	cfg Config

	conns   sync.Map // 远端地址字符串 -> *Conn
	acceptQ chan *Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewListener 创建监听器并启动分发循环
func NewListener(ch channel.Channel, cfg Config) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ch:      ch,
		cfg:     cfg,
		acceptQ: make(chan *Conn, acceptQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	l.wg.Add(2)
	go l.dispatchLoop()
	go l.cleanupLoop()
	return l, nil
}

// dispatchLoop 入站分发循环
func (l *Listener) dispatchLoop() {
	defer l.wg.Done()

	for {
		data, from, err := l.ch.Recv()
		if err != nil {
			return
		}

		key := from.String()
		if v, ok := l.conns.Load(key); ok {
			v.(*Conn).HandleDatagram(data, from)
			continue
		}

		// 未知地址: 只有结构完好的 SYN 才触发被动打开。
		// 其余孤儿段直接丢弃，否则会残留永不建立的 LISTEN 连接。
		seg, derr := segment.Decode(data)
		if derr != nil || seg.Kind() != segment.KindSyn || seg.IsCorrupt() {
			continue
		}

		c := newConn(l.ch, from, l.cfg)
		c.onClosed = func(closed *Conn) {
			l.conns.Delete(key)
		}
		c.listen()
		l.conns.Store(key, c)

		go l.watchEstablished(c)
		c.HandleDatagram(data, from)
	}
}

// watchEstablished 连接建立后入队等待 Accept
func (l *Listener) watchEstablished(c *Conn) {
	select {
	case <-c.established:
	case <-c.closedCh:
		return
	case <-l.ctx.Done():
		return
	}

	select {
	case l.acceptQ <- c:
	case <-l.ctx.Done():
		c.abort(ErrConnClosed)
	}
}

// cleanupLoop 定期回收已终结但未被摘除的连接
func (l *Listener) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.conns.Range(func(key, v interface{}) bool {
				if v.(*Conn).IsClosed() {
					l.conns.Delete(key)
				}
				return true
			})
		}
	}
}

// Accept 等待下一条完成握手的连接
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-l.acceptQ:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, ErrConnClosed
	}
}

// Addr 监听地址
func (l *Listener) Addr() net.Addr {
	return l.ch.LocalAddr()
}

// ConnCount 当前连接数
func (l *Listener) ConnCount() int {
	count := 0
	l.conns.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// AggregateStats 汇总全部连接的统计 (监控导出用)
// RTT 相关字段取样本最多连接的值，计数字段直接累加。
func (l *Listener) AggregateStats() Stats {
	var agg Stats
	l.conns.Range(func(_, v interface{}) bool {
		s := v.(*Conn).GetStats()
		agg.BytesSent += s.BytesSent
		agg.BytesReceived += s.BytesReceived
		agg.SegmentsSent += s.SegmentsSent
		agg.SegmentsReceived += s.SegmentsReceived
		agg.Retransmits += s.Retransmits
		agg.TimeoutRetransmits += s.TimeoutRetransmits
		agg.DupAckRetransmits += s.DupAckRetransmits
		agg.ZeroWindowProbes += s.ZeroWindowProbes
		agg.Corrupted += s.Corrupted
		agg.Malformed += s.Malformed
		agg.Duplicates += s.Duplicates
		agg.OutOfWindow += s.OutOfWindow
		agg.AcksSent += s.AcksSent
		agg.AcksReceived += s.AcksReceived
		agg.DupAcks += s.DupAcks
		agg.IllegalTransitions += s.IllegalTransitions
		if s.SRTT > agg.SRTT {
			agg.SRTT = s.SRTT
			agg.RTTVar = s.RTTVar
			agg.RTO = s.RTO
		}
		return true
	})
	return agg
}

// Close 关闭监听器: 中止全部连接并关闭底层信道
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.conns.Range(func(key, v interface{}) bool {
			v.(*Conn).abort(ErrConnClosed)
			l.conns.Delete(key)
			return true
		})
		l.ch.Close()
	})
	l.wg.Wait()
	return nil
}

// Dial 主动打开一条连接
// 信道归连接独占，入站段由连接自己的循环消化；握手失败时信道被关闭。
func Dial(ctx context.Context, ch channel.Channel, remote net.Addr, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, fmt.Errorf("远端地址不能为空")
	}

	c := newConn(ch, remote, cfg)
	c.ownsChannel = true
	go c.pump()

	if err := c.connect(ctx); err != nil {
		c.release()
		return nil, fmt.Errorf("连接 %s 失败: %w", remote, err)
	}
	return c, nil
}
