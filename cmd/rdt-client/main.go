// =============================================================================
// 文件: cmd/rdt-client/main.go
// 描述: 可靠传输客户端 - 连接回显服务，发送数据并校验回显
// =============================================================================
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/config"
	"github.com/mrcgq/rdt/internal/conn"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("c", "", "配置文件路径 (留空使用默认配置)")
	showVersion := flag.Bool("v", false, "显示版本")
	server := flag.String("s", "127.0.0.1:9000", "服务端地址")
	wsURL := flag.String("ws", "", "WebSocket 服务端 URL (形如 ws://host:port/rdt，设置后代替 UDP)")
	size := flag.Int("size", 4096, "每条消息字节数")
	count := flag.Int("count", 10, "消息条数")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rdt-client %s (构建: %s, %s/%s)\n",
			Version, BuildTime, runtime.GOOS, runtime.GOARCH)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx := context.Background()

	// 底层信道: UDP (默认) 或 WebSocket
	var (
		ch     channel.Channel
		remote net.Addr
		err    error
	)
	if *wsURL != "" {
		ws, derr := channel.DialWS(*wsURL)
		if derr != nil {
			fmt.Fprintf(os.Stderr, "WebSocket 连接失败: %v\n", derr)
			os.Exit(1)
		}
		ch = ws
		remote = ws.RemoteAddr()
	} else {
		remote, err = net.ResolveUDPAddr("udp", *server)
		if err != nil {
			fmt.Fprintf(os.Stderr, "地址解析失败: %v\n", err)
			os.Exit(1)
		}
		udp, lerr := channel.ListenUDP(":0")
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "UDP 绑定失败: %v\n", lerr)
			os.Exit(1)
		}
		ch = udp
	}

	if cfg.Simulator.Enabled {
		if cfg.Simulator.Seed != 0 {
			ch = channel.WrapUnreliableSeed(ch, cfg.ToProfile(), cfg.Simulator.Seed)
		} else {
			ch = channel.WrapUnreliable(ch, cfg.ToProfile())
		}
	}

	fmt.Printf("连接 %s ...\n", *server)
	c, err := conn.Dial(ctx, ch, remote, cfg.ToConnConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "连接失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("已建立 (本地 %s)\n", c.LocalAddr())

	start := time.Now()
	total := 0
	recvBuf := make([]byte, 64*1024)

	for i := 0; i < *count; i++ {
		payload := make([]byte, *size)
		rand.Read(payload)

		if _, err := c.Write(ctx, payload); err != nil {
			fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
			os.Exit(1)
		}

		// 读取完整回显并逐字节校验
		echoed := make([]byte, 0, *size)
		for len(echoed) < *size {
			n, err := c.Read(ctx, recvBuf)
			if err != nil {
				fmt.Fprintf(os.Stderr, "接收失败: %v\n", err)
				os.Exit(1)
			}
			echoed = append(echoed, recvBuf[:n]...)
		}
		if !bytes.Equal(echoed[:*size], payload) {
			fmt.Fprintln(os.Stderr, "回显内容不匹配")
			os.Exit(1)
		}
		total += *size
		fmt.Printf("  消息 %d/%d 回显校验通过 (%d 字节)\n", i+1, *count, *size)
	}

	elapsed := time.Since(start)

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "关闭失败: %v\n", err)
	}

	stats := c.GetStats()
	fmt.Println("=========================================")
	fmt.Printf("  传输 %d 字节，耗时 %v (%.1f KB/s)\n",
		total, elapsed.Round(time.Millisecond),
		float64(total)/1024/elapsed.Seconds())
	fmt.Printf("  段: 发 %d / 收 %d / 重传 %d\n",
		stats.SegmentsSent, stats.SegmentsReceived, stats.Retransmits)
	fmt.Printf("  RTT: SRTT %v / RTO %v\n", stats.SRTT, stats.RTO)
	fmt.Printf("  终态: %s\n", stats.State)
	fmt.Println("=========================================")
}
