// =============================================================================
// 文件: internal/channel/unreliable.go
// 描述: 不可靠信道模拟器 - 注入丢包、损坏、延迟与重复
// =============================================================================
package channel

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// Profile 损伤配置
type Profile struct {
	LossRate      float64       // 丢包概率 [0,1]
	CorruptRate   float64       // 损坏概率 [0,1]
	DuplicateRate float64       // 重复概率 [0,1]
	DelayMin      time.Duration // 最小延迟
	DelayMax      time.Duration // 最大延迟
}

// DefaultProfile 默认损伤配置 (轻度损伤)
func DefaultProfile() Profile {
	return Profile{
		LossRate:      0.10,
		CorruptRate:   0.05,
		DuplicateRate: 0.0,
		DelayMin:      time.Millisecond,
		DelayMax:      10 * time.Millisecond,
	}
}

// Stats 信道统计
type Stats struct {
	Sent       uint64
	Lost       uint64
	Corrupted  uint64
	Duplicated uint64
	TotalDelay time.Duration
}

// Unreliable 不可靠信道
// 包装下层信道，在发送路径上按配置注入损伤。接收路径原样透传，
// 因此两端各自包装即可模拟双向损伤。
type Unreliable struct {
	inner   Channel
	profile Profile
	rng     *rand.Rand

	stats Stats
	mu    sync.Mutex
}

// WrapUnreliable 包装下层信道
func WrapUnreliable(inner Channel, profile Profile) *Unreliable {
	return &Unreliable{
		inner:   inner,
		profile: profile,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WrapUnreliableSeed 带固定随机种子的包装 (测试用，损伤序列可复现)
func WrapUnreliableSeed(inner Channel, profile Profile, seed int64) *Unreliable {
	return &Unreliable{
		inner:   inner,
		profile: profile,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Send 发送数据报，可能丢弃、破坏、延迟或重复
func (u *Unreliable) Send(addr net.Addr, p []byte) error {
	u.mu.Lock()
	u.stats.Sent++

	// 丢包
	if u.rng.Float64() < u.profile.LossRate {
		u.stats.Lost++
		u.mu.Unlock()
		return nil // 发后即忘：丢弃对调用方不可见
	}

	out := make([]byte, len(p))
	copy(out, p)

	// 损坏：翻转 1~5 个随机字节的所有位
	if u.rng.Float64() < u.profile.CorruptRate && len(out) > 0 {
		u.stats.Corrupted++
		n := 1 + u.rng.Intn(min(5, len(out)))
		for i := 0; i < n; i++ {
			out[u.rng.Intn(len(out))] ^= 0xFF
		}
	}

	duplicate := u.rng.Float64() < u.profile.DuplicateRate
	if duplicate {
		u.stats.Duplicated++
	}

	// 延迟
	var delay time.Duration
	if u.profile.DelayMax > u.profile.DelayMin {
		delay = u.profile.DelayMin +
			time.Duration(u.rng.Int63n(int64(u.profile.DelayMax-u.profile.DelayMin)))
	} else {
		delay = u.profile.DelayMin
	}
	u.stats.TotalDelay += delay
	u.mu.Unlock()

	if delay <= 0 {
		err := u.inner.Send(addr, out)
		if duplicate {
			u.inner.Send(addr, out)
		}
		return err
	}

	time.AfterFunc(delay, func() {
		u.inner.Send(addr, out)
		if duplicate {
			u.inner.Send(addr, out)
		}
	})
	return nil
}

// Recv 接收数据报 (透传)
func (u *Unreliable) Recv() ([]byte, net.Addr, error) {
	return u.inner.Recv()
}

// LocalAddr 本地地址
func (u *Unreliable) LocalAddr() net.Addr {
	return u.inner.LocalAddr()
}

// Close 关闭信道
func (u *Unreliable) Close() error {
	return u.inner.Close()
}

// GetStats 获取统计快照
func (u *Unreliable) GetStats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// ResetStats 重置统计
func (u *Unreliable) ResetStats() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats = Stats{}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
