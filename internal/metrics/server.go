// =============================================================================
// 文件: internal/metrics/server.go
// 描述: 健康检查和 Metrics 服务 - Prometheus 标准格式
// =============================================================================
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 指标服务器
type Server struct {
	listen      string
	metricsPath string
	healthPath  string
	enablePprof bool

	httpServer *http.Server
	registry   *prometheus.Registry

	healthy     int32
	healthCheck func() HealthStatus

	mu sync.RWMutex
}

// HealthStatus 健康状态
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth 组件健康状态
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewServer 创建指标服务器
func NewServer(listen, metricsPath, healthPath string, enablePprof bool) *Server {
	// 自定义 registry，避免污染全局
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		listen:      listen,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		enablePprof: enablePprof,
		healthy:     1,
		registry:    registry,
	}
}

// MustRegister 注册收集器 (失败时 panic)
func (s *Server) MustRegister(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// SetHealthCheck 设置健康检查函数
func (s *Server) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheck = fn
}

// Start 启动服务器
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc(s.healthPath, s.handleHealth)
	mux.HandleFunc(s.healthPath+"/live", s.handleLiveness)

	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:         s.listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Metrics] 服务器错误: %v\n", err)
		}
	}()

	return nil
}

// handleHealth 健康检查处理
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthCheck := s.healthCheck
	s.mu.RUnlock()

	var status HealthStatus
	if healthCheck != nil {
		status = healthCheck()
	} else {
		status = HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// handleLiveness 存活探针
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.healthy) == 1 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT OK"))
	}
}

// SetHealthy 设置健康状态
func (s *Server) SetHealthy(healthy bool) {
	if healthy {
		atomic.StoreInt32(&s.healthy, 1)
	} else {
		atomic.StoreInt32(&s.healthy, 0)
	}
}

// Stop 停止服务器
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// Registry 获取 registry (测试与扩展用)
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}
