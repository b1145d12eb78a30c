// =============================================================================
// 文件: internal/timer/timer.go
// 描述: 按键倒计时服务 - 支持启动/取消/重启，取消与到期并发时保证不误触发
// =============================================================================
package timer

import (
	"sync"
	"time"
)

// entry 单个定时器记录
type entry struct {
	timer  *time.Timer
	gen    uint64 // 代数，用于区分已取消的旧定时器
	onFire func()
}

// Service 按键定时器服务
// 每个键最多存在一个活跃定时器；累积确认策略只用一个键追踪最老的未确认单元，
// 选择重传策略为每个在途单元使用独立的键。
type Service struct {
	entries map[string]*entry
	nextGen uint64
	mu      sync.Mutex
}

// NewService 创建定时器服务
func NewService() *Service {
	return &Service{
		entries: make(map[string]*entry),
	}
}

// Start 启动定时器
// 同键的旧定时器被取代；onFire 在独立的调度上下文执行。
func (s *Service) Start(key string, d time.Duration, onFire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(key, d, onFire)
}

func (s *Service) startLocked(key string, d time.Duration, onFire func()) {
	if old, ok := s.entries[key]; ok {
		old.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	e := &entry{gen: gen, onFire: onFire}

	e.timer = time.AfterFunc(d, func() {
		// 到期与取消竞争：只有代数仍匹配时才算有效触发
		s.mu.Lock()
		cur, ok := s.entries[key]
		if !ok || cur.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.entries, key)
		s.mu.Unlock()

		onFire()
	})

	s.entries[key] = e
}

// Cancel 取消定时器
// 取消提交后 onFire 绝不会再被调用；对不存在的键是空操作。
func (s *Service) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.timer.Stop()
		delete(s.entries, key)
	}
}

// Restart 用新时长重启定时器，复用原回调
// 键不存在时是空操作 (回调已触发或已取消)。
func (s *Service) Restart(key string, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	// 旧回调若已在途，代数检查会将其作废；重建条目携带新代数
	s.startLocked(key, d, e.onFire)
	return true
}

// Active 查询键是否有活跃定时器
func (s *Service) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len 活跃定时器数量
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CancelAll 取消全部定时器 (连接关闭时调用)
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
}
