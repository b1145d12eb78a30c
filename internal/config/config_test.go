// =============================================================================
// 文件: internal/config/config_test.go
// 描述: 配置加载与校验测试
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrcgq/rdt/internal/window"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置应通过校验: %v", err)
	}
	if cfg.GetListenPort() != 9000 {
		t.Errorf("默认端口错误: %d", cfg.GetListenPort())
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
listen: ":8500"
log_level: "debug"
conn:
  mss: 512
  rto_min_ms: 50
window:
  policy: "selective"
  size: 16
metrics:
  enabled: false
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Listen != ":8500" {
		t.Errorf("listen 错误: %s", cfg.Listen)
	}
	if cfg.Conn.MSS != 512 {
		t.Errorf("mss 错误: %d", cfg.Conn.MSS)
	}
	// 未覆盖的字段保留默认值
	if cfg.Conn.MaxRetries != 10 {
		t.Errorf("未覆盖字段未保留默认: %d", cfg.Conn.MaxRetries)
	}
	if cfg.Window.Policy != "selective" || cfg.Window.Size != 16 {
		t.Errorf("window 配置错误: %+v", cfg.Window)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("缺失文件应报错")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"端口格式", func(c *Config) { c.Listen = "bad" }, "listen"},
		{"MSS 越界", func(c *Config) { c.Conn.MSS = 0 }, "mss"},
		{"发送窗口过小", func(c *Config) { c.Conn.SendWindow = 1 }, "send_window"},
		{"RTO 下限越界", func(c *Config) { c.Conn.RTOMinMs = 5 }, "rto_min_ms"},
		{"RTO 上下限倒置", func(c *Config) { c.Conn.RTOMaxMs = 50 }, "rto_max_ms"},
		{"未知确认策略", func(c *Config) { c.Window.Policy = "hybrid" }, "确认策略"},
		{"窗口越界", func(c *Config) { c.Window.Size = 0 }, "window.size"},
		{"丢包率越界", func(c *Config) { c.Simulator.Enabled = true; c.Simulator.LossRate = 1.5 }, "loss_rate"},
		{"延迟区间倒置", func(c *Config) {
			c.Simulator.Enabled = true
			c.Simulator.DelayMinMs = 100
			c.Simulator.DelayMaxMs = 50
		}, "delay_max_ms"},
		{"WS 路径格式", func(c *Config) { c.WebSocket.Enabled = true; c.WebSocket.Path = "rdt" }, "websocket.path"},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: 应校验失败", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.errSub) {
			t.Errorf("%s: 错误信息缺少 %q: %v", tc.name, tc.errSub, err)
		}
	}
}

func TestPortConflict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = cfg.Listen
	if err := cfg.Validate(); err == nil {
		t.Fatal("端口冲突应校验失败")
	}

	cfg = DefaultConfig()
	cfg.WebSocket.Enabled = true
	cfg.WebSocket.Listen = ":9000"
	if err := cfg.Validate(); err == nil {
		t.Fatal("websocket 端口冲突应校验失败")
	}
}

func TestToConnConfig(t *testing.T) {
	cfg := DefaultConfig()
	cc := cfg.ToConnConfig()

	if cc.MSS != 1024 {
		t.Errorf("MSS 转换错误: %d", cc.MSS)
	}
	if cc.RTOMin != 100*time.Millisecond || cc.RTOMax != 10*time.Second {
		t.Errorf("RTO 转换错误: min=%v max=%v", cc.RTOMin, cc.RTOMax)
	}
	if cc.ConnectTimeout != 10*time.Second {
		t.Errorf("握手超时转换错误: %v", cc.ConnectTimeout)
	}
	if err := cc.Validate(); err != nil {
		t.Errorf("转换结果应通过连接层校验: %v", err)
	}
}

func TestToWindowConfig(t *testing.T) {
	cfg := DefaultConfig()
	wc := cfg.ToWindowConfig()
	if wc.Policy != window.Cumulative {
		t.Errorf("默认策略应为累积确认: %v", wc.Policy)
	}

	cfg.Window.Policy = "Selective" // 大小写不敏感
	if cfg.ToWindowConfig().Policy != window.Selective {
		t.Error("策略大小写转换失败")
	}
}

func TestToProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Simulator.LossRate = 0.2
	cfg.Simulator.DelayMaxMs = 30

	p := cfg.ToProfile()
	if p.LossRate != 0.2 {
		t.Errorf("丢包率转换错误: %f", p.LossRate)
	}
	if p.DelayMax != 30*time.Millisecond {
		t.Errorf("延迟转换错误: %v", p.DelayMax)
	}
}

func TestGenerateExampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := WriteExampleConfig(path); err != nil {
		t.Fatalf("示例配置写入失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("示例配置应可加载: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("示例配置应通过校验: %v", err)
	}
}
