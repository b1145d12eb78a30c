// =============================================================================
// 文件: internal/conn/buffers.go
// 描述: 面向连接层 - 字节粒度的发送/接收缓冲
// =============================================================================
package conn

import (
	"bytes"
	"time"
)

// sendEntry 一个在途数据块
type sendEntry struct {
	seq           uint32 // 首字节序号
	data          []byte
	sentAt        time.Time
	retries       int
	retransmitted bool // Karn 规则: 重传过的块不产生 RTT 样本
}

func (e *sendEntry) end() uint32 {
	return e.seq + uint32(len(e.data))
}

// sendBuffer 发送缓冲
// 序号按字节推进：每个块占据 [seq, seq+len) 的序号区间。
// entries 按 seq 升序，累积确认只会从头部整块移除。
type sendBuffer struct {
	entries []*sendEntry
	una     uint32 // 最老的未确认字节
	nxt     uint32 // 下一个待分配的字节序号
}

func newSendBuffer(isn uint32) *sendBuffer {
	// SYN 占据一个序号，首个数据字节为 isn+1
	return &sendBuffer{una: isn + 1, nxt: isn + 1}
}

// add 为一个数据块分配序号并追加到未确认集合
func (b *sendBuffer) add(data []byte) *sendEntry {
	e := &sendEntry{
		seq:    b.nxt,
		data:   data,
		sentAt: time.Now(),
	}
	b.entries = append(b.entries, e)
	b.nxt += uint32(len(data))
	return e
}

// onAck 处理累积确认
// 返回被完整覆盖的块数，以及一个无歧义的 RTT 样本 (无则为 0)。
func (b *sendBuffer) onAck(ack uint32) (int, time.Duration) {
	if ack <= b.una {
		return 0, 0
	}
	// FIN 额外占据一个序号，确认可以指到 nxt+1；
	// 游标不越过数据末尾，否则在途字节数会下溢。
	if ack > b.nxt {
		ack = b.nxt
	}

	var sample time.Duration
	removed := 0
	for len(b.entries) > 0 {
		e := b.entries[0]
		if e.end() > ack {
			break
		}
		if !e.retransmitted && sample == 0 {
			sample = time.Since(e.sentAt)
		}
		b.entries = b.entries[1:]
		removed++
	}
	if ack > b.una {
		b.una = ack
	}
	return removed, sample
}

// unackedBytes 在途未确认字节数
func (b *sendBuffer) unackedBytes() int {
	return int(b.nxt - b.una)
}

// empty 是否无在途数据
func (b *sendBuffer) empty() bool {
	return len(b.entries) == 0
}

// recvBuffer 接收缓冲
// reorder 按块首字节序号缓存乱序到达；app 为已排序的应用可读流。
// 通告窗口 = 容量 - 已缓存但未被应用消费的字节数。
type recvBuffer struct {
	reorder  map[uint32][]byte
	rcvNxt   uint32 // 接收游标: 期望的下一个字节
	capacity int
	buffered int // reorder 中的字节数
	app      bytes.Buffer
}

func newRecvBuffer(capacity int) *recvBuffer {
	return &recvBuffer{
		reorder:  make(map[uint32][]byte),
		capacity: capacity,
	}
}

// window 当前通告窗口 (空闲容量)
func (b *recvBuffer) window() int {
	free := b.capacity - b.buffered - b.app.Len()
	if free < 0 {
		free = 0
	}
	return free
}

// insert 接纳一个数据块
// 返回 (是否接纳, 是否重复, 是否越窗)。窗口内的乱序块缓存并在
// 连续前缀就绪时排入应用流。
func (b *recvBuffer) insert(seq uint32, data []byte) (accepted, dup, outOfWindow bool) {
	// 游标之前: 已交付过的旧重复
	if seq < b.rcvNxt {
		return false, true, false
	}

	// 游标之后超出缓冲区间: 越窗丢弃
	// 可接纳区间为 [rcvNxt, rcvNxt + 容量 - 应用流待读字节)，
	// 乱序块本身就占据该区间内的位置。
	room := b.capacity - b.app.Len()
	if room < 0 {
		room = 0
	}
	if seq+uint32(len(data)) > b.rcvNxt+uint32(room) {
		return false, false, true
	}

	if _, exists := b.reorder[seq]; exists {
		return false, true, false
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	b.reorder[seq] = buf
	b.buffered += len(buf)

	// 从游标排空连续可交付段
	for {
		chunk, ok := b.reorder[b.rcvNxt]
		if !ok {
			break
		}
		delete(b.reorder, b.rcvNxt)
		b.buffered -= len(chunk)
		b.app.Write(chunk)
		b.rcvNxt += uint32(len(chunk))
	}
	return true, false, false
}

// read 从应用流读取
func (b *recvBuffer) read(p []byte) int {
	n, _ := b.app.Read(p)
	return n
}

// pending 应用流中待读字节数
func (b *recvBuffer) pending() int {
	return b.app.Len()
}
