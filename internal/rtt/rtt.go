// =============================================================================
// 文件: internal/rtt/rtt.go
// 描述: RTT 测量与自适应重传超时估算 (RFC 6298)
// =============================================================================
package rtt

import (
	"sync"
	"time"
)

const (
	// 平滑因子
	alpha = 0.125 // SRTT 平滑因子 (1/8)
	beta  = 0.25  // RTT 方差因子 (1/4)

	defaultInitRTO = 200 * time.Millisecond
)

// Estimator RTT 估算器
// 样本只应来自首次传输的单元 (Karn 规则由调用方保证)，
// 重传单元的确认不产生样本，避免歧义样本污染估计。
type Estimator struct {
	smoothedRTT time.Duration // 平滑 RTT (SRTT)
	rttVariance time.Duration // RTT 方差 (RTTVAR)
	minRTT      time.Duration
	maxRTT      time.Duration
	latestRTT   time.Duration

	rtoInit time.Duration // 首个样本到来前的超时
	rtoMin  time.Duration // 超时下限，防止虚假重传风暴
	rtoMax  time.Duration

	totalSamples uint64
	initialized  bool

	mu sync.RWMutex
}

// NewEstimator 创建 RTT 估算器
// 首个样本到来前 RTO() 返回 rtoInit (钳制后)：SRTT/RTTVAR 按
// rtoInit/2 与 rtoInit/8 预置，使 SRTT + 4*RTTVAR == rtoInit。
func NewEstimator(rtoInit, rtoMin, rtoMax time.Duration) *Estimator {
	if rtoInit <= 0 {
		rtoInit = defaultInitRTO
	}
	return &Estimator{
		smoothedRTT: rtoInit / 2,
		rttVariance: rtoInit / 8,
		rtoInit:     rtoInit,
		rtoMin:      rtoMin,
		rtoMax:      rtoMax,
	}
}

// Update 注入一个无歧义的往返样本
func (r *Estimator) Update(sample time.Duration) {
	if sample <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.latestRTT = sample
	r.totalSamples++

	if r.minRTT == 0 || sample < r.minRTT {
		r.minRTT = sample
	}
	if sample > r.maxRTT {
		r.maxRTT = sample
	}

	if !r.initialized {
		r.smoothedRTT = sample
		r.rttVariance = sample / 2
		r.initialized = true
		return
	}

	// RTTVAR = (1 - beta) * RTTVAR + beta * |SRTT - R|
	diff := r.smoothedRTT - sample
	if diff < 0 {
		diff = -diff
	}
	r.rttVariance = time.Duration(float64(r.rttVariance)*(1-beta) + float64(diff)*beta)

	// SRTT = (1 - alpha) * SRTT + alpha * R
	r.smoothedRTT = time.Duration(float64(r.smoothedRTT)*(1-alpha) + float64(sample)*alpha)
}

// RTO 计算重传超时: SRTT + 4*RTTVAR，钳制在 [rtoMin, rtoMax]
func (r *Estimator) RTO() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rto := r.smoothedRTT + 4*r.rttVariance
	if rto < r.rtoMin {
		rto = r.rtoMin
	}
	if rto > r.rtoMax {
		rto = r.rtoMax
	}
	return rto
}

// SmoothedRTT 平滑 RTT
func (r *Estimator) SmoothedRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.smoothedRTT
}

// Variance RTT 方差
func (r *Estimator) Variance() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rttVariance
}

// MinRTT 最小 RTT
func (r *Estimator) MinRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.minRTT == 0 {
		return r.smoothedRTT
	}
	return r.minRTT
}

// LatestRTT 最新样本
func (r *Estimator) LatestRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestRTT
}

// Samples 样本总数
func (r *Estimator) Samples() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalSamples
}

// Initialized 是否已有首个样本
func (r *Estimator) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Reset 重置估算器
func (r *Estimator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.smoothedRTT = r.rtoInit / 2
	r.rttVariance = r.rtoInit / 8
	r.minRTT = 0
	r.maxRTT = 0
	r.latestRTT = 0
	r.totalSamples = 0
	r.initialized = false
}
