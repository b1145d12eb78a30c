// =============================================================================
// 文件: internal/channel/websocket.go
// 描述: WebSocket 数据报信道 - 以二进制消息承载数据报的备用载体
// =============================================================================
package channel

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// wsPacket 入站数据报
type wsPacket struct {
	data []byte
	from net.Addr
}

// WSChannel 客户端 WebSocket 信道 (点对点)
// 每条二进制消息即一个数据报；载体本身可靠，但上层引擎不依赖这一点，
// 配合 Unreliable 包装仍可模拟任意损伤。
type WSChannel struct {
	conn    *websocket.Conn
	remote  net.Addr
	writeMu sync.Mutex // gorilla 要求单写者
	closed  int32
}

// DialWS 连接 WebSocket 服务端 (url 形如 "ws://host:port/path")
func DialWS(url string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket 连接失败: %w", err)
	}

	return &WSChannel{
		conn:   conn,
		remote: conn.RemoteAddr(),
	}, nil
}

// Send 发送数据报
func (c *WSChannel) Send(addr net.Addr, p []byte) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

// Recv 接收数据报
func (c *WSChannel) Recv() ([]byte, net.Addr, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) != 0 {
				return nil, nil, ErrClosed
			}
			return nil, nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return data, c.remote, nil
	}
}

// LocalAddr 本地地址
func (c *WSChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr 对端地址
func (c *WSChannel) RemoteAddr() net.Addr {
	return c.remote
}

// Close 关闭信道
func (c *WSChannel) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.conn.Close()
}

// wsSession 服务端会话
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// WSServer 服务端 WebSocket 信道
// 接受任意客户端的升级请求，把所有入站消息汇聚为一个数据报流；
// Send 按远端地址路由回对应会话。
type WSServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	sessions   sync.Map // addr.String() -> *wsSession
	recvQueue  chan wsPacket
	localAddr  net.Addr
	closed     int32
	wg         sync.WaitGroup
}

// ListenWS 创建并启动 WebSocket 服务端信道
func ListenWS(addr, path string) (*WSServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("绑定失败: %w", err)
	}

	s := &WSServer{
		recvQueue: make(chan wsPacket, 1024),
		localAddr: ln.Addr(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleUpgrade)

	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.httpServer.Serve(ln)
	}()

	return s, nil
}

// handleUpgrade 处理升级请求并泵入站消息
func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	from := conn.RemoteAddr()
	sess := &wsSession{conn: conn}
	s.sessions.Store(from.String(), sess)
	defer func() {
		s.sessions.Delete(from.String())
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		select {
		case s.recvQueue <- wsPacket{data: data, from: from}:
		default:
			// 队列满直接丢弃，上层重传机制负责恢复
		}
	}
}

// Send 发送数据报到指定远端
func (s *WSServer) Send(addr net.Addr, p []byte) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrClosed
	}

	v, ok := s.sessions.Load(addr.String())
	if !ok {
		return fmt.Errorf("无此会话: %v", addr)
	}

	sess := v.(*wsSession)
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.WriteMessage(websocket.BinaryMessage, p)
}

// Recv 接收数据报
func (s *WSServer) Recv() ([]byte, net.Addr, error) {
	pkt, ok := <-s.recvQueue
	if !ok {
		return nil, nil, ErrClosed
	}
	return pkt.data, pkt.from, nil
}

// LocalAddr 监听地址
func (s *WSServer) LocalAddr() net.Addr {
	return s.localAddr
}

// Close 关闭服务端信道
func (s *WSServer) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.sessions.Range(func(key, value interface{}) bool {
		value.(*wsSession).conn.Close()
		s.sessions.Delete(key)
		return true
	})

	err := s.httpServer.Close()
	s.wg.Wait()
	close(s.recvQueue)
	return err
}
