// =============================================================================
// 文件: internal/rtt/rtt_test.go
// 描述: RTT 估算器测试
// =============================================================================
package rtt

import (
	"testing"
	"time"
)

func TestFirstSampleInitializes(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, 100*time.Millisecond, 10*time.Second)

	if e.Initialized() {
		t.Fatal("未注入样本前不应为已初始化")
	}

	e.Update(200 * time.Millisecond)

	if !e.Initialized() {
		t.Fatal("首个样本后应为已初始化")
	}
	if e.SmoothedRTT() != 200*time.Millisecond {
		t.Errorf("首样本 SRTT 应等于样本值: got %v", e.SmoothedRTT())
	}
	if e.Variance() != 100*time.Millisecond {
		t.Errorf("首样本 RTTVAR 应为样本值的一半: got %v", e.Variance())
	}
}

// 首个样本到来前 RTO 等于配置的初始超时
func TestInitialRTOBeforeSamples(t *testing.T) {
	e := NewEstimator(400*time.Millisecond, 100*time.Millisecond, 10*time.Second)

	if e.RTO() != 400*time.Millisecond {
		t.Errorf("无样本时 RTO 应为初始值: got %v", e.RTO())
	}

	// Reset 后回到初始超时
	e.Update(50 * time.Millisecond)
	e.Reset()
	if e.RTO() != 400*time.Millisecond {
		t.Errorf("Reset 后 RTO 应恢复初始值: got %v", e.RTO())
	}
}

func TestConvergesToStableSample(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, 10*time.Millisecond, 10*time.Second)

	// 恒定 RTT 下 SRTT 应收敛到样本值，方差趋近于零
	for i := 0; i < 100; i++ {
		e.Update(150 * time.Millisecond)
	}

	srtt := e.SmoothedRTT()
	if srtt < 149*time.Millisecond || srtt > 151*time.Millisecond {
		t.Errorf("SRTT 未收敛到稳定样本: got %v", srtt)
	}
	if e.Variance() > 5*time.Millisecond {
		t.Errorf("稳定样本下方差应趋近于零: got %v", e.Variance())
	}
}

func TestRTOClampedToBounds(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, 100*time.Millisecond, 500*time.Millisecond)

	// 极小样本: RTO 被下限钳制
	for i := 0; i < 20; i++ {
		e.Update(time.Millisecond)
	}
	if e.RTO() != 100*time.Millisecond {
		t.Errorf("RTO 应被钳制到下限: got %v", e.RTO())
	}

	// 极大样本: RTO 被上限钳制
	e.Reset()
	for i := 0; i < 20; i++ {
		e.Update(2 * time.Second)
	}
	if e.RTO() != 500*time.Millisecond {
		t.Errorf("RTO 应被钳制到上限: got %v", e.RTO())
	}
}

func TestRTOFormula(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, time.Millisecond, time.Minute)

	e.Update(100 * time.Millisecond)
	// 首样本: SRTT=100ms, RTTVAR=50ms → RTO = 100 + 4*50 = 300ms
	if e.RTO() != 300*time.Millisecond {
		t.Errorf("RTO 公式错误: got %v, want 300ms", e.RTO())
	}
}

func TestIgnoresNonPositiveSamples(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, time.Millisecond, time.Minute)

	e.Update(0)
	e.Update(-time.Second)

	if e.Initialized() || e.Samples() != 0 {
		t.Error("非正样本不应被记录")
	}
}

func TestMinAndLatest(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, time.Millisecond, time.Minute)

	e.Update(300 * time.Millisecond)
	e.Update(100 * time.Millisecond)
	e.Update(200 * time.Millisecond)

	if e.MinRTT() != 100*time.Millisecond {
		t.Errorf("MinRTT 错误: got %v", e.MinRTT())
	}
	if e.LatestRTT() != 200*time.Millisecond {
		t.Errorf("LatestRTT 错误: got %v", e.LatestRTT())
	}
	if e.Samples() != 3 {
		t.Errorf("样本计数错误: got %d", e.Samples())
	}
}

func TestReset(t *testing.T) {
	e := NewEstimator(200*time.Millisecond, time.Millisecond, time.Minute)

	e.Update(100 * time.Millisecond)
	e.Reset()

	if e.Initialized() || e.Samples() != 0 {
		t.Error("Reset 后状态未清空")
	}
}
