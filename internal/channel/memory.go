// =============================================================================
// 文件: internal/channel/memory.go
// 描述: 进程内存信道 - 成对出现的无网络数据报通路 (测试与进程内对接)
// =============================================================================
package channel

import (
	"net"
	"sync"
)

// memAddr 内存信道地址
type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// memPacket 内存数据报
type memPacket struct {
	data []byte
	from net.Addr
}

// Memory 内存信道
// Send 把数据报投入对端队列；队列满时丢弃，与真实数据报网络一致。
type Memory struct {
	addr   memAddr
	peer   *Memory
	recvQ  chan memPacket
	closed bool
	mu     sync.RWMutex // 保护 closed 与 recvQ 的关闭竞争
}

// Pipe 创建一对互联的内存信道
func Pipe(aName, bName string) (*Memory, *Memory) {
	a := &Memory{addr: memAddr(aName), recvQ: make(chan memPacket, 4096)}
	b := &Memory{addr: memAddr(bName), recvQ: make(chan memPacket, 4096)}
	a.peer = b
	b.peer = a
	return a, b
}

// Send 发送数据报 (addr 被忽略，通路是点对点的)
func (m *Memory) Send(addr net.Addr, p []byte) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	m.peer.mu.RLock()
	defer m.peer.mu.RUnlock()
	if m.peer.closed {
		return nil // 对端已关，数据报静默消失
	}

	select {
	case m.peer.recvQ <- memPacket{data: buf, from: m.addr}:
	default:
		// 队列满: 丢弃
	}
	return nil
}

// Recv 接收数据报
func (m *Memory) Recv() ([]byte, net.Addr, error) {
	pkt, ok := <-m.recvQ
	if !ok {
		return nil, nil, ErrClosed
	}
	return pkt.data, pkt.from, nil
}

// LocalAddr 本地地址
func (m *Memory) LocalAddr() net.Addr {
	return m.addr
}

// Close 关闭信道
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.recvQ)
	return nil
}
