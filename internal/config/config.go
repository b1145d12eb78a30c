// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - YAML 加载、校验、端口冲突检测、关联配置同步
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/conn"
	"github.com/mrcgq/rdt/internal/window"
)

// Config 主配置
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Conn      ConnConfig      `yaml:"conn"`
	Window    WindowConfig    `yaml:"window"`
	Simulator SimulatorConfig `yaml:"simulator"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ConnConfig 面向连接层配置
type ConnConfig struct {
	MSS               int `yaml:"mss"`
	SendWindow        int `yaml:"send_window"`
	RecvBuffer        int `yaml:"recv_buffer"`
	RTOMinMs          int `yaml:"rto_min_ms"`
	RTOMaxMs          int `yaml:"rto_max_ms"`
	RTOInitMs         int `yaml:"rto_init_ms"`
	MaxRetries        int `yaml:"max_retries"`
	TimeWaitMs        int `yaml:"time_wait_ms"`
	ProbeIntervalMs   int `yaml:"probe_interval_ms"`
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// WindowConfig 窗口化重传引擎配置
type WindowConfig struct {
	Policy     string `yaml:"policy"` // cumulative, selective
	Size       int    `yaml:"size"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
}

// SimulatorConfig 不可靠信道模拟配置 (仅测试与演示场景启用)
type SimulatorConfig struct {
	Enabled       bool    `yaml:"enabled"`
	LossRate      float64 `yaml:"loss_rate"`
	CorruptRate   float64 `yaml:"corrupt_rate"`
	DuplicateRate float64 `yaml:"duplicate_rate"`
	DelayMinMs    int     `yaml:"delay_min_ms"`
	DelayMaxMs    int     `yaml:"delay_max_ms"`
	Seed          int64   `yaml:"seed"` // 0 = 随机种子
}

// WebSocketConfig WebSocket 信道配置
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// Load 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":9000",
		LogLevel: "info",

		Conn: ConnConfig{
			MSS:               1024,
			SendWindow:        65536,
			RecvBuffer:        65536,
			RTOMinMs:          100,
			RTOMaxMs:          10000,
			RTOInitMs:         200,
			MaxRetries:        10,
			TimeWaitMs:        2000,
			ProbeIntervalMs:   500,
			ConnectTimeoutSec: 10,
		},

		Window: WindowConfig{
			Policy:     "cumulative",
			Size:       8,
			TimeoutMs:  500,
			MaxRetries: 10,
		},

		Simulator: SimulatorConfig{
			Enabled:       false,
			LossRate:      0.1,
			CorruptRate:   0.05,
			DuplicateRate: 0,
			DelayMinMs:    0,
			DelayMaxMs:    0,
		},

		WebSocket: WebSocketConfig{
			Enabled: false,
			Listen:  ":9001",
			Path:    "/rdt",
		},

		Metrics: MetricsConfig{
			Enabled:     true,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			EnablePprof: false,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	mainPort, err := parsePort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen 端口格式错误: %w", err)
	}

	// 端口冲突检测
	ports := map[int]string{mainPort: "listen"}

	if c.WebSocket.Enabled {
		wsPort, err := parsePort(c.WebSocket.Listen)
		if err != nil {
			return fmt.Errorf("websocket.listen 端口格式错误: %w", err)
		}
		if existing, exists := ports[wsPort]; exists {
			return fmt.Errorf("websocket.listen 端口 (%d) 与 %s 冲突", wsPort, existing)
		}
		ports[wsPort] = "websocket"

		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return fmt.Errorf("websocket.path 必须以 / 开头")
		}
	}

	if c.Metrics.Enabled {
		metricsPort, err := parsePort(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics.listen 端口格式错误: %w", err)
		}
		if existing, exists := ports[metricsPort]; exists {
			return fmt.Errorf("metrics.listen 端口 (%d) 与 %s 冲突", metricsPort, existing)
		}
	}

	// 验证连接层配置
	if c.Conn.MSS < 1 || c.Conn.MSS > 65000 {
		return fmt.Errorf("conn.mss 需在 1-65000 之间")
	}
	if c.Conn.SendWindow < c.Conn.MSS {
		return fmt.Errorf("conn.send_window 需 >= mss")
	}
	if c.Conn.RecvBuffer < c.Conn.MSS {
		return fmt.Errorf("conn.recv_buffer 需 >= mss")
	}
	if c.Conn.RTOMinMs < 10 || c.Conn.RTOMinMs > 5000 {
		return fmt.Errorf("conn.rto_min_ms 需在 10-5000 之间")
	}
	if c.Conn.RTOMaxMs < c.Conn.RTOMinMs || c.Conn.RTOMaxMs > 60000 {
		return fmt.Errorf("conn.rto_max_ms 需大于 rto_min_ms 且不超过 60000")
	}
	if c.Conn.MaxRetries < 1 || c.Conn.MaxRetries > 50 {
		return fmt.Errorf("conn.max_retries 需在 1-50 之间")
	}

	// 验证窗口引擎配置
	switch strings.ToLower(c.Window.Policy) {
	case "cumulative", "selective":
	default:
		return fmt.Errorf("无效的确认策略: %s (支持: cumulative, selective)", c.Window.Policy)
	}
	if c.Window.Size < 1 || c.Window.Size > 4096 {
		return fmt.Errorf("window.size 需在 1-4096 之间")
	}
	if c.Window.TimeoutMs < 10 {
		return fmt.Errorf("window.timeout_ms 需 >= 10")
	}
	if c.Window.MaxRetries < 1 || c.Window.MaxRetries > 50 {
		return fmt.Errorf("window.max_retries 需在 1-50 之间")
	}

	// 验证模拟器配置
	if c.Simulator.Enabled {
		if c.Simulator.LossRate < 0 || c.Simulator.LossRate > 1 {
			return fmt.Errorf("simulator.loss_rate 需在 0-1 之间")
		}
		if c.Simulator.CorruptRate < 0 || c.Simulator.CorruptRate > 1 {
			return fmt.Errorf("simulator.corrupt_rate 需在 0-1 之间")
		}
		if c.Simulator.DuplicateRate < 0 || c.Simulator.DuplicateRate > 1 {
			return fmt.Errorf("simulator.duplicate_rate 需在 0-1 之间")
		}
		if c.Simulator.DelayMaxMs < c.Simulator.DelayMinMs {
			return fmt.Errorf("simulator.delay_max_ms 需 >= delay_min_ms")
		}
	}

	return nil
}

// ToConnConfig 转换为连接层配置
func (c *Config) ToConnConfig() conn.Config {
	return conn.Config{
		MSS:            c.Conn.MSS,
		SendWindow:     c.Conn.SendWindow,
		RecvBuffer:     c.Conn.RecvBuffer,
		RTOMin:         time.Duration(c.Conn.RTOMinMs) * time.Millisecond,
		RTOMax:         time.Duration(c.Conn.RTOMaxMs) * time.Millisecond,
		RTOInit:        time.Duration(c.Conn.RTOInitMs) * time.Millisecond,
		MaxRetries:     c.Conn.MaxRetries,
		TimeWait:       time.Duration(c.Conn.TimeWaitMs) * time.Millisecond,
		ProbeInterval:  time.Duration(c.Conn.ProbeIntervalMs) * time.Millisecond,
		ConnectTimeout: time.Duration(c.Conn.ConnectTimeoutSec) * time.Second,
	}
}

// ToWindowConfig 转换为窗口引擎配置
func (c *Config) ToWindowConfig() window.Config {
	policy := window.Cumulative
	if strings.ToLower(c.Window.Policy) == "selective" {
		policy = window.Selective
	}
	return window.Config{
		Policy:     policy,
		WindowSize: c.Window.Size,
		Timeout:    time.Duration(c.Window.TimeoutMs) * time.Millisecond,
		MaxRetries: c.Window.MaxRetries,
	}
}

// ToProfile 转换为不可靠信道模拟参数
func (c *Config) ToProfile() channel.Profile {
	return channel.Profile{
		LossRate:      c.Simulator.LossRate,
		CorruptRate:   c.Simulator.CorruptRate,
		DuplicateRate: c.Simulator.DuplicateRate,
		DelayMin:      time.Duration(c.Simulator.DelayMinMs) * time.Millisecond,
		DelayMax:      time.Duration(c.Simulator.DelayMaxMs) * time.Millisecond,
	}
}

// parsePort 解析端口号
func parsePort(addr string) (int, error) {
	if strings.HasPrefix(addr, ":") {
		return strconv.Atoi(addr[1:])
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return strconv.Atoi(addr)
	}
	return strconv.Atoi(portStr)
}

// GetListenPort 获取监听端口
func (c *Config) GetListenPort() int {
	port, _ := parsePort(c.Listen)
	return port
}

// =============================================================================
// 配置文件示例生成
// =============================================================================

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# RDT 配置文件示例
# =============================================================================

# 基础配置
listen: ":9000"                     # 监听地址
log_level: "info"                   # 日志级别: debug, info, warn, error

# 面向连接层
conn:
  mss: 1024                         # 最大段载荷 (字节)
  send_window: 65536                # 本地发送窗口 (字节)
  recv_buffer: 65536                # 接收缓冲容量 (字节，决定通告窗口)
  rto_min_ms: 100                   # 最小重传超时 (毫秒)
  rto_max_ms: 10000                 # 最大重传超时 (毫秒)
  rto_init_ms: 200                  # 初始重传超时 (毫秒)
  max_retries: 10                   # 最大重传次数
  time_wait_ms: 2000                # TIME_WAIT 宽限期 (毫秒)
  probe_interval_ms: 500            # 零窗口探测间隔 (毫秒)
  connect_timeout_sec: 10           # 握手超时 (秒)

# 窗口化重传引擎 (无连接模式)
window:
  policy: "cumulative"              # 确认策略: cumulative (累积), selective (选择)
  size: 8                           # 窗口大小 (单元数)
  timeout_ms: 500                   # 重传超时 (毫秒)
  max_retries: 10                   # 最大重传次数

# 不可靠信道模拟 (测试与演示)
simulator:
  enabled: false
  loss_rate: 0.1                    # 丢包率
  corrupt_rate: 0.05                # 损坏率
  duplicate_rate: 0                 # 重复率
  delay_min_ms: 0                   # 最小附加延迟 (毫秒)
  delay_max_ms: 0                   # 最大附加延迟 (毫秒)
  seed: 0                           # 随机种子 (0 = 随机)

# WebSocket 信道 (替代 UDP 的数据报承载)
websocket:
  enabled: false
  listen: ":9001"                   # WebSocket 监听端口
  path: "/rdt"                      # WebSocket 路径

# Prometheus 监控
metrics:
  enabled: true
  listen: ":9100"                   # 监控端口
  path: "/metrics"                  # Prometheus 指标路径
  health_path: "/health"            # 健康检查路径
  enable_pprof: false               # 启用 pprof
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
