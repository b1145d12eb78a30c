// =============================================================================
// 文件: cmd/rdt-server/main.go
// 描述: 可靠传输回显服务 - 集成 Prometheus 指标与信道损伤模拟
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/config"
	"github.com/mrcgq/rdt/internal/conn"
	"github.com/mrcgq/rdt/internal/metrics"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	startTime = time.Now()
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	listenOverride := flag.String("listen", "", "覆盖监听地址")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}
	if *listenOverride != "" {
		cfg.Listen = *listenOverride
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 底层数据报信道: UDP 或 WebSocket
	var ch channel.Channel
	if cfg.WebSocket.Enabled {
		ws, err := channel.ListenWS(cfg.WebSocket.Listen, cfg.WebSocket.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WebSocket 监听失败: %v\n", err)
			os.Exit(1)
		}
		ch = ws
	} else {
		udp, err := channel.ListenUDP(cfg.Listen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "UDP 监听失败: %v\n", err)
			os.Exit(1)
		}
		ch = udp
	}

	// 可选的信道损伤注入 (演示与测试)
	var sim *channel.Unreliable
	if cfg.Simulator.Enabled {
		if cfg.Simulator.Seed != 0 {
			sim = channel.WrapUnreliableSeed(ch, cfg.ToProfile(), cfg.Simulator.Seed)
		} else {
			sim = channel.WrapUnreliable(ch, cfg.ToProfile())
		}
		ch = sim
	}

	listener, err := conn.NewListener(ch, cfg.ToConnConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "监听器创建失败: %v\n", err)
		os.Exit(1)
	}

	// Metrics 服务器
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		metricsServer.MustRegister(metrics.NewConnCollector(listener))
		if sim != nil {
			metricsServer.MustRegister(metrics.NewSimCollector(sim))
		}
		metricsServer.SetHealthCheck(func() metrics.HealthStatus {
			return metrics.HealthStatus{
				Status:    "healthy",
				Timestamp: time.Now(),
				Uptime:    time.Since(startTime),
				Components: map[string]metrics.ComponentHealth{
					"listener": {Status: "healthy",
						Message: fmt.Sprintf("%d 条活跃连接", listener.ConnCount())},
				},
			}
		})
		if err := metricsServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Metrics 启动失败: %v\n", err)
		}
	}

	printBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			c, err := listener.Accept(gctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			fmt.Printf("[连接] %s 已建立\n", c.RemoteAddr())
			g.Go(func() error {
				echo(gctx, c)
				return nil
			})
		}
	})

	// 等待信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\n正在关闭...")
	cancel()
	listener.Close()
	if metricsServer != nil {
		metricsServer.Stop()
	}
	g.Wait()
}

// echo 回显循环: 收到什么就发回什么，对端关闭后有序挥手
func echo(ctx context.Context, c *conn.Conn) {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.Read(ctx, buf)
		if err != nil {
			if err == io.EOF {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				c.Close(closeCtx)
				cancel()
			} else {
				c.Close(ctx)
			}
			break
		}
		if _, err := c.Write(ctx, buf[:n]); err != nil {
			break
		}
	}

	stats := c.GetStats()
	fmt.Printf("[连接] %s 结束: 收 %d 字节 / 发 %d 字节 / 重传 %d / SRTT %v\n",
		c.RemoteAddr(), stats.BytesReceived, stats.BytesSent, stats.Retransmits, stats.SRTT)
}

func printVersion() {
	fmt.Printf("rdt-server %s (构建: %s, %s/%s)\n",
		Version, BuildTime, runtime.GOOS, runtime.GOARCH)
}

func printBanner(cfg *config.Config) {
	transport := "udp"
	listen := cfg.Listen
	if cfg.WebSocket.Enabled {
		transport = "websocket"
		listen = cfg.WebSocket.Listen + cfg.WebSocket.Path
	}

	fmt.Println("=========================================")
	fmt.Printf("  RDT 回显服务 v%s\n", Version)
	fmt.Printf("  监听: %s (%s)\n", listen, transport)
	fmt.Printf("  MSS: %d / 发送窗口: %d / 接收缓冲: %d\n",
		cfg.Conn.MSS, cfg.Conn.SendWindow, cfg.Conn.RecvBuffer)
	if cfg.Simulator.Enabled {
		fmt.Printf("  信道损伤: 丢包 %.0f%% / 损坏 %.0f%%\n",
			cfg.Simulator.LossRate*100, cfg.Simulator.CorruptRate*100)
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  指标: http://%s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	fmt.Println("=========================================")
}
