// =============================================================================
// 文件: internal/conn/conn.go
// 描述: 面向连接层 - 可靠字节流连接 (握手/数据传输/流量控制/挥手)
// =============================================================================
package conn

import (
	"context"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/rtt"
	"github.com/mrcgq/rdt/internal/segment"
	"github.com/mrcgq/rdt/internal/timer"
)

// 定时器键
const (
	timerRto      = "rto"       // 最老未确认段的重传定时器
	timerProbe    = "probe"     // 零窗口探测
	timerTimeWait = "time-wait" // TIME_WAIT 宽限期
)

// Conn 一条可靠字节流连接
// 发送侧: 应用数据按 MSS 切块进入 pending，流量控制允许时移入发送
// 缓冲并发出；单一定时器追踪最老未确认段，超时重传全部在途段。
// 接收侧: 乱序块缓存重组，连续前缀排入应用流，每次数据到达都回发
// 携带通告窗口的累积确认。
// 全部连接状态由单一互斥锁保护，定时器回调与段到达都先取锁。
type Conn struct {
	ch     channel.Channel
	remote net.Addr
	cfg    Config

	state State

	iss uint32 // 本端初始序列号
	irs uint32 // 对端初始序列号

	sndBuf  *sendBuffer
	rcvBuf  *recvBuffer
	pending [][]byte // 因流量控制尚未进入发送缓冲的块
	peerWnd int      // 对端最近通告的窗口

	est    *rtt.Estimator
	timers *timer.Service

	// 挥手状态
	finSent     bool
	finSeq      uint32 // 本端 FIN 占据的序号
	finRetries  int
	finReceived bool
	peerFinSeq  uint32

	// 握手期间需要重传的控制段 (SYN-ACK)
	ctlSeg     *segment.Segment
	ctlRetries int

	established chan struct{}
	estOnce     sync.Once
	closedCh    chan struct{}
	closedOnce  sync.Once
	fatalErr    error

	readCh chan struct{} // 数据就绪信号

	ownsChannel bool        // Dial 创建的连接负责关闭信道
	onClosed    func(*Conn) // 管理器回调 (连接到达 CLOSED 后清理)

	stats Stats
	mu    sync.Mutex
}

// newConn 创建连接 (不触发任何网络动作)
func newConn(ch channel.Channel, remote net.Addr, cfg Config) *Conn {
	iss := rand.Uint32() >> 2 // 保留回绕余量
	return &Conn{
		ch:          ch,
		remote:      remote,
		cfg:         cfg,
		state:       StateClosed,
		iss:         iss,
		sndBuf:      newSendBuffer(iss),
		rcvBuf:      newRecvBuffer(cfg.RecvBuffer),
		peerWnd:     cfg.MSS,
		est:         rtt.NewEstimator(cfg.RTOInit, cfg.RTOMin, cfg.RTOMax),
		timers:      timer.NewService(),
		established: make(chan struct{}),
		closedCh:    make(chan struct{}),
		readCh:      make(chan struct{}, 1),
	}
}

// listen 进入被动打开状态 (由监听器调用)
func (c *Conn) listen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepLocked(EvListen)
}

// connect 主动打开: 发送 SYN 并等待握手完成
// SYN 按初始 RTO 周期重发，整体受 ConnectTimeout 约束。
func (c *Conn) connect(ctx context.Context) error {
	c.mu.Lock()
	if !c.stepLocked(EvConnect) {
		c.mu.Unlock()
		return ErrInvalidState
	}
	syn := segment.NewSyn(c.iss, c.wnd16Locked())
	c.sendSegLocked(syn)
	c.mu.Unlock()

	deadline := time.After(c.cfg.ConnectTimeout)
	ticker := time.NewTicker(c.cfg.RTOInit)
	defer ticker.Stop()

	retries := 0
	for {
		select {
		case <-c.established:
			return nil
		case <-c.closedCh:
			return c.Err()
		case <-ctx.Done():
			c.abort(ctx.Err())
			return ctx.Err()
		case <-deadline:
			c.abort(ErrConnTimeout)
			return ErrConnTimeout
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateSynSent {
				retries++
				if retries > c.cfg.MaxRetries {
					c.abortLocked(ErrRetryLimit)
					c.mu.Unlock()
					return ErrRetryLimit
				}
				c.sendSegLocked(syn)
				c.stats.Retransmits++
				c.stats.TimeoutRetransmits++
			}
			c.mu.Unlock()
		}
	}
}

// pump 入站循环 (仅主动打开方: 独占信道)
// 被动打开方的段由监听器分发，不运行此循环。
func (c *Conn) pump() {
	for {
		data, from, err := c.ch.Recv()
		if err != nil {
			c.mu.Lock()
			if c.fatalErr == nil && c.state != StateClosed {
				c.finishLocked(ErrConnClosed)
			}
			c.mu.Unlock()
			return
		}
		c.HandleDatagram(data, from)
	}
}

// HandleDatagram 处理一个入站数据报
// 结构无效与校验失败的到达视同丢失: 丢弃，绝不解析其字段；
// 已建立状态下对损坏到达重发当前累积确认，给对端重复反馈。
func (c *Conn) HandleDatagram(data []byte, from net.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seg, err := segment.Decode(data)
	if err != nil {
		c.stats.Malformed++
		return
	}
	c.stats.SegmentsReceived++

	if seg.IsCorrupt() {
		c.stats.Corrupted++
		if c.state == StateEstablished {
			c.sendAckLocked()
		}
		return
	}

	switch {
	case seg.HasFlag(segment.FlagSYN) && seg.HasFlag(segment.FlagACK):
		c.handleSynAckLocked(seg)
	case seg.HasFlag(segment.FlagSYN):
		c.handleSynLocked(seg)
	case seg.HasFlag(segment.FlagFIN):
		c.handleAckFieldLocked(seg)
		c.handleFinLocked(seg)
	default:
		// DATA 与纯 ACK 都携带 ACK 标志
		c.handleAckFieldLocked(seg)
		if len(seg.Payload) > 0 {
			c.handleDataLocked(seg)
		}
	}
}

// handleSynLocked 处理 SYN (握手第一步，服务端)
func (c *Conn) handleSynLocked(seg *segment.Segment) {
	switch c.state {
	case StateListen:
		c.irs = seg.Seq
		c.rcvBuf.rcvNxt = seg.Seq + 1 // SYN 占据一个序号
		c.peerWnd = int(seg.Window)
		c.stepLocked(EvRecvSyn)

		c.ctlSeg = segment.NewSynAck(c.iss, c.rcvBuf.rcvNxt, c.wnd16Locked())
		c.sendSegLocked(c.ctlSeg)
		c.armRtoLocked()
	case StateSynRcvd:
		// 重复 SYN: 我方 SYN-ACK 可能丢失，重发
		if c.ctlSeg != nil {
			c.sendSegLocked(c.ctlSeg)
			c.stats.Retransmits++
		}
	default:
		c.stats.IllegalTransitions++
	}
}

// handleSynAckLocked 处理 SYN-ACK (握手第二步，客户端)
func (c *Conn) handleSynAckLocked(seg *segment.Segment) {
	switch c.state {
	case StateSynSent:
		if seg.Ack != c.iss+1 {
			return // 不是对我方 SYN 的确认
		}
		c.irs = seg.Seq
		c.rcvBuf.rcvNxt = seg.Seq + 1
		c.peerWnd = int(seg.Window)
		c.stepLocked(EvRecvSynAck)

		c.sendAckLocked() // 握手第三步
		c.signalEstablishedLocked()
	case StateEstablished:
		// 重复 SYN-ACK: 我方握手 ACK 丢失，重发
		c.sendAckLocked()
	default:
		c.stats.IllegalTransitions++
	}
}

// handleAckFieldLocked 处理段中的确认号与通告窗口
func (c *Conn) handleAckFieldLocked(seg *segment.Segment) {
	switch c.state {
	case StateClosed, StateListen, StateSynSent:
		return
	}

	c.stats.AcksReceived++
	prevWnd := c.peerWnd
	c.peerWnd = int(seg.Window)
	ack := seg.Ack

	// 握手第三步: 对 SYN-ACK 的确认使服务端进入 ESTABLISHED。
	// 客户端握手 ACK 丢失时，携带 ACK 标志的首个数据段同样完成转移。
	if c.state == StateSynRcvd && ack >= c.iss+1 {
		c.stepLocked(EvRecvAck)
		c.ctlSeg = nil
		c.timers.Cancel(timerRto)
		c.signalEstablishedLocked()
	}

	removed, sample := c.sndBuf.onAck(ack)
	if sample > 0 {
		c.est.Update(sample)
	}
	if removed == 0 && ack <= c.sndBuf.una && !c.sndBuf.empty() {
		c.stats.DupAcks++
	}
	if removed > 0 {
		if c.sndBuf.empty() && !c.pendingFinLocked() {
			c.timers.Cancel(timerRto)
		} else {
			// 仍有在途段，为新的最老段重启定时器
			c.armRtoLocked()
		}
	}

	// 本端 FIN 被确认
	if c.finSent && ack >= c.finSeq+1 {
		switch c.state {
		case StateFinWait1:
			c.stepLocked(EvRecvAck) // -> FIN_WAIT_2
			c.timers.Cancel(timerRto)
		case StateLastAck:
			c.stepLocked(EvRecvAck) // -> CLOSED
			c.finishLocked(nil)
			return
		}
	}

	// 窗口从零恢复: 停止探测并继续排出积压数据
	if c.peerWnd > 0 {
		if prevWnd == 0 {
			c.timers.Cancel(timerProbe)
		}
		c.drainLocked()
	} else if len(c.pending) > 0 || !c.sndBuf.empty() {
		c.armProbeLocked()
	}
}

// handleDataLocked 处理数据段
func (c *Conn) handleDataLocked(seg *segment.Segment) {
	switch c.state {
	case StateEstablished, StateFinWait1, StateFinWait2:
	default:
		return
	}

	accepted, dup, oow := c.rcvBuf.insert(seg.Seq, seg.Payload)
	switch {
	case accepted:
		c.stats.BytesReceived += uint64(len(seg.Payload))
		c.signalReadLocked()
	case dup:
		c.stats.Duplicates++
	case oow:
		c.stats.OutOfWindow++
	}

	// 每个数据到达都回发累积确认 (重复到达也是重复反馈的机会)
	c.sendAckLocked()
}

// handleFinLocked 处理对端 FIN
func (c *Conn) handleFinLocked(seg *segment.Segment) {
	switch c.state {
	case StateEstablished:
		// 只有对端数据全部就绪后 FIN 才可接纳，否则等重传
		if seg.Seq != c.rcvBuf.rcvNxt {
			return
		}
		c.stepLocked(EvRecvFin) // -> CLOSE_WAIT
		c.finReceived = true
		c.peerFinSeq = seg.Seq
		c.rcvBuf.rcvNxt = seg.Seq + 1 // FIN 占据一个序号
		c.sendAckLocked()
		c.signalReadLocked() // 唤醒读者返回 EOF
	case StateFinWait2:
		if seg.Seq != c.rcvBuf.rcvNxt {
			return
		}
		c.stepLocked(EvRecvFin) // -> TIME_WAIT
		c.finReceived = true
		c.peerFinSeq = seg.Seq
		c.rcvBuf.rcvNxt = seg.Seq + 1
		c.sendAckLocked()
		c.signalReadLocked()
		c.armTimeWaitLocked()
	case StateTimeWait:
		// 宽限期内吸收迟到的重复 FIN: 重发确认并重启宽限定时器
		c.sendAckLocked()
		c.armTimeWaitLocked()
	case StateCloseWait, StateLastAck:
		// 重复 FIN: 确认丢失，重发
		c.sendAckLocked()
	default:
		c.stats.IllegalTransitions++
	}
}

// Write 写入应用数据
// 数据按 MSS 切块排队；在途字节数受 min(本地发送窗口, 对端通告窗口)
// 约束，窗口不足时阻塞直到空间释放、ctx 取消或连接致命失败。
func (c *Conn) Write(ctx context.Context, p []byte) (int, error) {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}

	for off := 0; off < len(p); off += c.cfg.MSS {
		end := off + c.cfg.MSS
		if end > len(p) {
			end = len(p)
		}
		chunk := make([]byte, end-off)
		copy(chunk, p[off:end])
		c.pending = append(c.pending, chunk)
	}
	c.drainLocked()
	c.mu.Unlock()

	// 阻塞直到全部块进入发送缓冲
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		if c.fatalErr != nil {
			err := c.fatalErr
			c.mu.Unlock()
			return 0, err
		}
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return len(p), nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			// 部分写入: 返回已进入发送缓冲的字节数，
			// 未入缓冲的块作废，由调用方决定是否重写
			c.mu.Lock()
			n := len(p) - c.pendingBytesLocked()
			c.pending = nil
			c.mu.Unlock()
			if n < 0 {
				n = 0
			}
			return n, ctx.Err()
		case <-c.closedCh:
			return 0, c.Err()
		case <-ticker.C:
		}
	}
}

// pendingBytesLocked 仍在排队、尚未进入发送缓冲的字节数
func (c *Conn) pendingBytesLocked() int {
	n := 0
	for _, chunk := range c.pending {
		n += len(chunk)
	}
	return n
}

// writableLocked 当前状态是否可写
func (c *Conn) writableLocked() error {
	if c.fatalErr != nil {
		return c.fatalErr
	}
	switch c.state {
	case StateEstablished, StateCloseWait:
		return nil
	case StateClosed:
		return ErrConnClosed
	default:
		return ErrConnNotReady
	}
}

// drainLocked 在窗口允许的范围内把排队块移入发送缓冲并发出
func (c *Conn) drainLocked() {
	effWnd := c.cfg.SendWindow
	if c.peerWnd < effWnd {
		effWnd = c.peerWnd
	}

	for len(c.pending) > 0 {
		chunk := c.pending[0]
		if c.sndBuf.unackedBytes()+len(chunk) > effWnd {
			break
		}
		c.pending = c.pending[1:]
		e := c.sndBuf.add(chunk)
		c.sendSegLocked(segment.NewData(e.seq, c.rcvBuf.rcvNxt, c.wnd16Locked(), e.data))
		c.stats.BytesSent += uint64(len(e.data))
		if !c.timers.Active(timerRto) {
			c.armRtoLocked()
		}
	}

	if len(c.pending) > 0 && c.peerWnd == 0 {
		c.armProbeLocked()
	}
}

// onRto 重传超时: 重传全部在途段 (定时器只追踪最老的那个)
func (c *Conn) onRto() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fatalErr != nil || c.state == StateClosed {
		return
	}

	// 握手控制段 (SYN-ACK) 重传
	if c.state == StateSynRcvd && c.ctlSeg != nil {
		c.ctlRetries++
		if c.ctlRetries > c.cfg.MaxRetries {
			c.abortLocked(ErrRetryLimit)
			return
		}
		c.sendSegLocked(c.ctlSeg)
		c.stats.Retransmits++
		c.stats.TimeoutRetransmits++
		c.armRtoLocked()
		return
	}

	resent := false
	for _, e := range c.sndBuf.entries {
		if e.retries >= c.cfg.MaxRetries {
			c.abortLocked(ErrRetryLimit)
			return
		}
		e.retries++
		e.retransmitted = true
		e.sentAt = time.Now()
		c.sendSegLocked(segment.NewData(e.seq, c.rcvBuf.rcvNxt, c.wnd16Locked(), e.data))
		c.stats.Retransmits++
		c.stats.TimeoutRetransmits++
		resent = true
	}

	// FIN 与数据共用同一个定时器
	if c.pendingFinLocked() && c.sndBuf.empty() {
		c.finRetries++
		if c.finRetries > c.cfg.MaxRetries {
			c.abortLocked(ErrRetryLimit)
			return
		}
		c.sendSegLocked(segment.NewFin(c.finSeq, c.rcvBuf.rcvNxt))
		c.stats.Retransmits++
		c.stats.TimeoutRetransmits++
		resent = true
	}

	if resent {
		c.armRtoLocked()
	}
}

// onProbe 零窗口探测
// 发送缓冲非空时重传最老段；否则把排队数据的首字节强行推过
// 零窗口，任一情形都会引出携带最新通告窗口的确认。
func (c *Conn) onProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fatalErr != nil || c.state == StateClosed {
		return
	}
	if c.peerWnd > 0 {
		c.drainLocked()
		return
	}

	switch {
	case !c.sndBuf.empty():
		e := c.sndBuf.entries[0]
		e.retransmitted = true
		c.sendSegLocked(segment.NewData(e.seq, c.rcvBuf.rcvNxt, c.wnd16Locked(), e.data))
	case len(c.pending) > 0:
		chunk := c.pending[0]
		probe := chunk[:1]
		if len(chunk) == 1 {
			c.pending = c.pending[1:]
		} else {
			c.pending[0] = chunk[1:]
		}
		e := c.sndBuf.add(probe)
		c.sendSegLocked(segment.NewData(e.seq, c.rcvBuf.rcvNxt, c.wnd16Locked(), e.data))
		c.stats.BytesSent++
		if !c.timers.Active(timerRto) {
			c.armRtoLocked()
		}
	default:
		return // 无可探测内容
	}

	c.stats.ZeroWindowProbes++
	c.armProbeLocked()
}

// Read 读取应用数据
// 无数据时阻塞；对端 FIN 且流已排空后返回 io.EOF。
func (c *Conn) Read(ctx context.Context, p []byte) (int, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		if n := c.rcvBuf.read(p); n > 0 {
			// 应用消费释放了接收容量，通告窗口随之扩大；
			// 零窗口解除时主动告知对端，否则只能等其探测。
			if c.rcvBuf.window() > 0 && c.state == StateEstablished {
				c.sendAckLocked()
			}
			c.mu.Unlock()
			return n, nil
		}
		if c.finReceived && c.rcvBuf.pending() == 0 {
			c.mu.Unlock()
			return 0, io.EOF
		}
		if c.fatalErr != nil {
			err := c.fatalErr
			c.mu.Unlock()
			return 0, err
		}
		if c.state == StateClosed {
			c.mu.Unlock()
			return 0, ErrConnClosed
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-c.readCh:
		case <-ticker.C:
		}
	}
}

// Close 有序关闭
// 先排空本端在途数据，再发送 FIN 并走完挥手流程；ctx 到期后强制中止。
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		c.release()
		return nil
	case StateEstablished, StateCloseWait:
	default:
		// 握手中途关闭: 直接中止
		c.abortLocked(ErrConnClosed)
		c.mu.Unlock()
		c.release()
		return nil
	}
	c.mu.Unlock()

	// 等待在途数据全部确认
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
drain:
	for {
		c.mu.Lock()
		if c.fatalErr != nil || (len(c.pending) == 0 && c.sndBuf.empty()) {
			c.mu.Unlock()
			break drain
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.abort(ctx.Err())
			c.release()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	c.mu.Lock()
	if c.fatalErr != nil {
		err := c.fatalErr
		c.mu.Unlock()
		c.release()
		return err
	}
	if c.stepLocked(EvClose) { // ESTABLISHED -> FIN_WAIT_1 或 CLOSE_WAIT -> LAST_ACK
		c.finSent = true
		c.finSeq = c.sndBuf.nxt
		c.sendSegLocked(segment.NewFin(c.finSeq, c.rcvBuf.rcvNxt))
		c.armRtoLocked()
	}
	c.mu.Unlock()

	select {
	case <-c.closedCh:
	case <-ctx.Done():
		c.abort(ctx.Err())
		c.release()
		return ctx.Err()
	}
	c.release()
	return nil
}

// abort 致命中止 (外部调用形式)
func (c *Conn) abort(err error) {
	c.mu.Lock()
	c.abortLocked(err)
	c.mu.Unlock()
}

// abortLocked 致命中止: 跳过挥手直接回到 CLOSED (需要持有锁)
func (c *Conn) abortLocked(err error) {
	if c.state == StateClosed && c.fatalErr != nil {
		return
	}
	c.finishLocked(err)
}

// finishLocked 连接到达 CLOSED: 释放定时器并唤醒所有阻塞方 (需要持有锁)
func (c *Conn) finishLocked(err error) {
	if err != nil && c.fatalErr == nil {
		c.fatalErr = err
	}
	c.state = StateClosed
	c.timers.CancelAll()
	c.closedOnce.Do(func() { close(c.closedCh) })
	c.signalReadLocked()

	if c.onClosed != nil {
		cb := c.onClosed
		c.onClosed = nil
		go cb(c)
	}
}

// release 关闭本连接独占的资源
func (c *Conn) release() {
	if c.ownsChannel {
		c.ch.Close()
	}
}

// ---- 定时器装配 ----

func (c *Conn) armRtoLocked() {
	c.timers.Start(timerRto, c.est.RTO(), c.onRto)
}

func (c *Conn) armProbeLocked() {
	if c.timers.Active(timerProbe) {
		return
	}
	c.timers.Start(timerProbe, c.cfg.ProbeInterval, c.onProbe)
}

func (c *Conn) armTimeWaitLocked() {
	c.timers.Start(timerTimeWait, c.cfg.TimeWait, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateTimeWait {
			c.stepLocked(EvTimeout)
			c.finishLocked(nil)
		}
	})
}

// ---- 发送辅助 ----

// sendSegLocked 发送一个段 (需要持有锁)
func (c *Conn) sendSegLocked(seg *segment.Segment) {
	c.ch.Send(c.remote, seg.Encode())
	c.stats.SegmentsSent++
}

// sendAckLocked 发送携带当前通告窗口的累积确认 (需要持有锁)
func (c *Conn) sendAckLocked() {
	c.sendSegLocked(segment.NewAck(c.rcvBuf.rcvNxt, c.wnd16Locked()))
	c.stats.AcksSent++
}

// wnd16Locked 当前通告窗口，钳制到线路格式的 16 位上限
func (c *Conn) wnd16Locked() uint16 {
	w := c.rcvBuf.window()
	if w > 65535 {
		w = 65535
	}
	return uint16(w)
}

// pendingFinLocked 本端 FIN 已发出但尚未被确认
func (c *Conn) pendingFinLocked() bool {
	return c.finSent && (c.state == StateFinWait1 || c.state == StateLastAck)
}

// ---- 信号 ----

func (c *Conn) signalEstablishedLocked() {
	c.estOnce.Do(func() { close(c.established) })
}

func (c *Conn) signalReadLocked() {
	select {
	case c.readCh <- struct{}{}:
	default:
	}
}

// ---- 对外查询 ----

// State 当前连接状态
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsClosed 连接是否已终结
func (c *Conn) IsClosed() bool {
	return c.State() == StateClosed
}

// Err 致命错误 (无则为 nil)
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}

// LocalAddr 本端地址
func (c *Conn) LocalAddr() net.Addr {
	return c.ch.LocalAddr()
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// GetStats 获取统计快照
func (c *Conn) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.SRTT = c.est.SmoothedRTT()
	s.RTTVar = c.est.Variance()
	s.RTO = c.est.RTO()
	s.UnackedBytes = c.sndBuf.unackedBytes()
	s.PeerWindow = c.peerWnd
	s.LocalWindow = c.rcvBuf.window()
	s.State = c.state.String()
	return s
}
