// =============================================================================
// 文件: internal/window/window_test.go
// 描述: 窗口化重传引擎测试 - 两种确认策略的丢包恢复与窗口约束
// =============================================================================
package window

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/segment"
)

// dropOnce 丢弃指定序号数据单元的首次传输，其余原样透传
type dropOnce struct {
	channel.Channel
	target  uint32
	dropped bool
	mu      sync.Mutex
}

func (d *dropOnce) Send(addr net.Addr, p []byte) error {
	seg, err := segment.Decode(p)
	if err == nil && seg.Kind() == segment.KindData && seg.Seq == d.target {
		d.mu.Lock()
		first := !d.dropped
		d.dropped = true
		d.mu.Unlock()
		if first {
			return nil // 首次传输静默丢弃
		}
	}
	return d.Channel.Send(addr, p)
}

// collector 按到达顺序收集交付载荷
type collector struct {
	got [][]byte
	mu  sync.Mutex
}

func (c *collector) deliver(p []byte) {
	buf := make([]byte, len(p))
	copy(buf, p)
	c.mu.Lock()
	c.got = append(c.got, buf)
	c.mu.Unlock()
}

func (c *collector) snapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.got))
	copy(out, c.got)
	return out
}

// transfer 在内存通路上完成一次完整传输并返回双端统计
func transfer(t *testing.T, cfg Config, payloads [][]byte,
	wrapSender func(channel.Channel) channel.Channel) (SenderStats, ReceiverStats, [][]byte) {
	t.Helper()

	sendCh, recvCh := channel.Pipe("sender", "receiver")
	defer sendCh.Close()
	defer recvCh.Close()

	var upstream channel.Channel = sendCh
	if wrapSender != nil {
		upstream = wrapSender(sendCh)
	}

	col := &collector{}
	r, err := NewReceiver(recvCh, cfg, col.deliver)
	if err != nil {
		t.Fatalf("接收端创建失败: %v", err)
	}

	s, err := NewSender(upstream, recvCh.LocalAddr(), cfg)
	if err != nil {
		t.Fatalf("发送端创建失败: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go r.Run(ctx)
	go s.Run(ctx)

	for _, p := range payloads {
		if err := s.Send(ctx, p); err != nil {
			t.Fatalf("发送失败: %v", err)
		}
	}
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("等待确认失败: %v", err)
	}

	return s.GetStats(), r.GetStats(), col.snapshot()
}

func makePayloads(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("unit-%03d", i))
	}
	return out
}

func assertInOrder(t *testing.T, got, want [][]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("交付数量错误: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("第 %d 个交付乱序或错误: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCumulativeLosslessDelivery(t *testing.T) {
	cfg := Config{Policy: Cumulative, WindowSize: 4, Timeout: 200 * time.Millisecond, MaxRetries: 5}
	payloads := makePayloads(8)

	sstats, rstats, got := transfer(t, cfg, payloads, nil)
	assertInOrder(t, got, payloads)

	if sstats.Retransmits != 0 {
		t.Errorf("无损信道不应重传: %d", sstats.Retransmits)
	}
	if rstats.Delivered != 8 {
		t.Errorf("交付计数错误: %d", rstats.Delivered)
	}
}

func TestSelectiveLosslessDelivery(t *testing.T) {
	cfg := Config{Policy: Selective, WindowSize: 4, Timeout: 200 * time.Millisecond, MaxRetries: 5}
	payloads := makePayloads(8)

	_, rstats, got := transfer(t, cfg, payloads, nil)
	assertInOrder(t, got, payloads)

	if rstats.OutOfWindow != 0 {
		t.Errorf("无损信道不应有越窗丢弃: %d", rstats.OutOfWindow)
	}
}

// 单元 2 首传丢失: 累积策略超时后重传整个窗口，交付仍然有序且无重复
func TestCumulativeLossRecovery(t *testing.T) {
	cfg := Config{Policy: Cumulative, WindowSize: 4, Timeout: 80 * time.Millisecond, MaxRetries: 10}
	payloads := makePayloads(8)

	sstats, rstats, got := transfer(t, cfg, payloads, func(ch channel.Channel) channel.Channel {
		return &dropOnce{Channel: ch, target: 2}
	})
	assertInOrder(t, got, payloads)

	if sstats.Timeouts == 0 {
		t.Error("丢失后应有超时事件")
	}
	if sstats.TimeoutRetransmits == 0 {
		t.Error("丢失后应有超时重传")
	}
	// 缺口期间到达的超前单元被丢弃
	if rstats.OutOfOrder == 0 {
		t.Error("缺口期间应观察到乱序到达")
	}
	if rstats.Delivered != 8 {
		t.Errorf("交付计数错误: %d", rstats.Delivered)
	}
}

// 单元 2 首传丢失: 选择策略只重传该单元，乱序者被缓冲
func TestSelectiveLossRecovery(t *testing.T) {
	cfg := Config{Policy: Selective, WindowSize: 4, Timeout: 80 * time.Millisecond, MaxRetries: 10}
	payloads := makePayloads(8)

	sstats, rstats, got := transfer(t, cfg, payloads, func(ch channel.Channel) channel.Channel {
		return &dropOnce{Channel: ch, target: 2}
	})
	assertInOrder(t, got, payloads)

	if sstats.Retransmits != 1 {
		t.Errorf("选择策略应只重传丢失的那个单元: got %d", sstats.Retransmits)
	}
	if rstats.OutOfOrder == 0 {
		t.Error("缺口期间应有乱序缓冲")
	}
}

// 窗口满时 Send 阻塞，直到 ctx 取消
func TestSendBlocksWhenWindowFull(t *testing.T) {
	sendCh, recvCh := channel.Pipe("sender", "receiver")
	defer sendCh.Close()
	defer recvCh.Close()

	cfg := Config{Policy: Cumulative, WindowSize: 2, Timeout: 10 * time.Second, MaxRetries: 5}
	s, err := NewSender(sendCh, recvCh.LocalAddr(), cfg)
	if err != nil {
		t.Fatalf("发送端创建失败: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	// 无接收端，前两个填满窗口
	if err := s.Send(ctx, []byte("u0")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if err := s.Send(ctx, []byte("u1")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if s.InFlight() != 2 {
		t.Fatalf("在途数量错误: %d", s.InFlight())
	}

	blockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := s.Send(blockCtx, []byte("u2")); err != context.DeadlineExceeded {
		t.Errorf("窗口满时第三个发送应阻塞到超时: got %v", err)
	}
	if s.InFlight() != 2 {
		t.Errorf("阻塞的发送不应进入窗口: %d", s.InFlight())
	}
}

// 重传次数超限: 发送端致命停止，后续调用全部失败
func TestRetryLimitFatal(t *testing.T) {
	sendCh, recvCh := channel.Pipe("sender", "receiver")
	defer sendCh.Close()
	defer recvCh.Close()

	cfg := Config{Policy: Cumulative, WindowSize: 1, Timeout: 20 * time.Millisecond, MaxRetries: 2}
	s, err := NewSender(sendCh, recvCh.LocalAddr(), cfg)
	if err != nil {
		t.Fatalf("发送端创建失败: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Send(ctx, []byte("doomed")); err != nil {
		t.Fatalf("首次发送失败: %v", err)
	}
	if err := s.Wait(ctx); err != ErrRetryLimit {
		t.Fatalf("应以 ErrRetryLimit 致命停止: got %v", err)
	}
	if err := s.Send(ctx, []byte("after")); err != ErrRetryLimit {
		t.Errorf("致命停止后发送应立即失败: got %v", err)
	}
}

// ---- 接收端行为的直接驱动测试 ----

// recvHarness 接收端测试装置: 从对端捕获确认
type recvHarness struct {
	r      *Receiver
	peerCh *channel.Memory
	ch     *channel.Memory
	from   net.Addr
}

func newRecvHarness(t *testing.T, cfg Config, col *collector) *recvHarness {
	t.Helper()
	peerCh, recvCh := channel.Pipe("peer", "recv")
	t.Cleanup(func() { peerCh.Close(); recvCh.Close() })

	r, err := NewReceiver(recvCh, cfg, col.deliver)
	if err != nil {
		t.Fatalf("接收端创建失败: %v", err)
	}
	return &recvHarness{r: r, peerCh: peerCh, ch: recvCh, from: peerCh.LocalAddr()}
}

func (h *recvHarness) data(seq uint32, payload string) {
	h.r.Handle(segment.NewData(seq, 0, 0, []byte(payload)).Encode(), h.from)
}

// ack 读取对端收到的下一个确认 (无则阻塞至超时)
func (h *recvHarness) ack(t *testing.T) uint32 {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("未收到确认")
		default:
		}
		data, _, err := h.peerCh.Recv()
		if err != nil {
			t.Fatalf("确认接收失败: %v", err)
		}
		seg, err := segment.Decode(data)
		if err != nil || seg.IsCorrupt() {
			continue
		}
		if seg.Kind() == segment.KindAck {
			return seg.Ack
		}
	}
}

func TestCumulativeReceiverDuplicateFeedback(t *testing.T) {
	col := &collector{}
	h := newRecvHarness(t, Config{Policy: Cumulative, WindowSize: 4,
		Timeout: time.Second, MaxRetries: 5}, col)

	// 超前到达: 丢弃且无确认可回 (从未确认过任何单元)
	h.data(3, "early")
	if s := h.r.GetStats(); s.OutOfOrder != 1 || s.Delivered != 0 {
		t.Fatalf("超前单元应被丢弃: %+v", s)
	}

	// 期望单元: 交付并确认
	h.data(0, "first")
	if got := h.ack(t); got != 0 {
		t.Fatalf("确认值错误: %d", got)
	}

	// 旧重复: 重发上一个累积确认
	h.data(0, "first")
	if got := h.ack(t); got != 0 {
		t.Fatalf("重复到达应重发累积确认: %d", got)
	}
	if s := h.r.GetStats(); s.Duplicates != 1 || s.StaleDuplicates != 1 {
		t.Errorf("重复统计错误: %+v", s)
	}

	assertInOrder(t, col.snapshot(), [][]byte{[]byte("first")})
}

func TestCumulativeReceiverCorruptFeedback(t *testing.T) {
	col := &collector{}
	h := newRecvHarness(t, Config{Policy: Cumulative, WindowSize: 4,
		Timeout: time.Second, MaxRetries: 5}, col)

	h.data(0, "ok")
	h.ack(t)

	// 损坏到达: 丢弃并重发上一个确认
	raw := segment.NewData(1, 0, 0, []byte("corrupt me")).Encode()
	raw[len(raw)-1] ^= 0xFF
	h.r.Handle(raw, h.from)

	if got := h.ack(t); got != 0 {
		t.Fatalf("损坏到达应重发上一个累积确认: %d", got)
	}
	if s := h.r.GetStats(); s.Corrupted != 1 {
		t.Errorf("损坏统计错误: %+v", s)
	}
}

func TestSelectiveReceiverWindow(t *testing.T) {
	col := &collector{}
	h := newRecvHarness(t, Config{Policy: Selective, WindowSize: 4,
		Timeout: time.Second, MaxRetries: 5}, col)

	// 越窗: 丢弃无确认
	h.data(6, "beyond")
	if s := h.r.GetStats(); s.OutOfWindow != 1 {
		t.Fatalf("越窗统计错误: %+v", s)
	}

	// 窗口内乱序: 缓冲并单独确认
	h.data(2, "two")
	if got := h.ack(t); got != 2 {
		t.Fatalf("乱序单元应被单独确认: %d", got)
	}
	if h.r.Buffered() != 1 {
		t.Fatalf("缓冲数量错误: %d", h.r.Buffered())
	}

	// 基序号到达: 连续前缀一起交付
	h.data(0, "zero")
	h.ack(t)
	h.data(1, "one")
	h.ack(t)

	if h.r.Expected() != 3 {
		t.Errorf("基序号推进错误: %d", h.r.Expected())
	}
	assertInOrder(t, col.snapshot(), [][]byte{[]byte("zero"), []byte("one"), []byte("two")})

	// 窗口之前的旧重复: 重新单独确认
	h.data(1, "one")
	if got := h.ack(t); got != 1 {
		t.Fatalf("旧重复应被重新确认: %d", got)
	}
	if s := h.r.GetStats(); s.StaleDuplicates != 1 {
		t.Errorf("旧重复统计错误: %+v", s)
	}
}

func TestReceiverMalformed(t *testing.T) {
	col := &collector{}
	h := newRecvHarness(t, Config{Policy: Cumulative, WindowSize: 4,
		Timeout: time.Second, MaxRetries: 5}, col)

	h.r.Handle([]byte{0x01, 0x02}, h.from)
	if s := h.r.GetStats(); s.Malformed != 1 || s.Delivered != 0 {
		t.Errorf("结构无效统计错误: %+v", s)
	}
}

// 窗口不变量: 任意时刻 base <= nextSeq <= base+N
func TestWindowInvariant(t *testing.T) {
	cfg := Config{Policy: Cumulative, WindowSize: 3, Timeout: 100 * time.Millisecond, MaxRetries: 10}
	payloads := makePayloads(12)

	sendCh, recvCh := channel.Pipe("sender", "receiver")
	defer sendCh.Close()
	defer recvCh.Close()

	col := &collector{}
	r, _ := NewReceiver(recvCh, cfg, col.deliver)
	s, _ := NewSender(sendCh, recvCh.LocalAddr(), cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go r.Run(ctx)
	go s.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range payloads {
			s.Send(ctx, p)
		}
		s.Wait(ctx)
	}()

	for {
		select {
		case <-done:
			stats := s.GetStats()
			if stats.Base > stats.NextSeq || stats.NextSeq > stats.Base+uint32(cfg.WindowSize) {
				t.Fatalf("窗口不变量被破坏: base=%d next=%d", stats.Base, stats.NextSeq)
			}
			return
		default:
			stats := s.GetStats()
			if stats.Base > stats.NextSeq || stats.NextSeq > stats.Base+uint32(cfg.WindowSize) {
				t.Fatalf("窗口不变量被破坏: base=%d next=%d", stats.Base, stats.NextSeq)
			}
			time.Sleep(time.Millisecond)
		}
	}
}
