// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/conn"
)

// =============================================================================
// 连接层收集器
// =============================================================================

// ConnStatsProvider 连接统计数据源
type ConnStatsProvider interface {
	ConnCount() int
	AggregateStats() conn.Stats
}

// ConnCollector 连接层指标收集器
type ConnCollector struct {
	provider ConnStatsProvider

	activeConnsDesc  *prometheus.Desc
	bytesSentDesc    *prometheus.Desc
	bytesRecvDesc    *prometheus.Desc
	segmentsSentDesc *prometheus.Desc
	segmentsRecvDesc *prometheus.Desc
	retransmitsDesc  *prometheus.Desc
	probesDesc       *prometheus.Desc
	corruptedDesc    *prometheus.Desc
	duplicatesDesc   *prometheus.Desc
	outOfWindowDesc  *prometheus.Desc
	dupAcksDesc      *prometheus.Desc
	illegalDesc      *prometheus.Desc
	srttDesc         *prometheus.Desc
	rtoDesc          *prometheus.Desc
}

// NewConnCollector 创建连接层收集器
func NewConnCollector(provider ConnStatsProvider) *ConnCollector {
	namespace := "rdt"
	subsystem := "conn"

	return &ConnCollector{
		provider: provider,

		activeConnsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "active_connections"),
			"Number of active connections",
			nil, nil,
		),
		bytesSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_sent_total"),
			"Total payload bytes sent",
			nil, nil,
		),
		bytesRecvDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_received_total"),
			"Total payload bytes received",
			nil, nil,
		),
		segmentsSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "segments_sent_total"),
			"Total segments sent",
			nil, nil,
		),
		segmentsRecvDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "segments_received_total"),
			"Total segments received",
			nil, nil,
		),
		retransmitsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "retransmits_total"),
			"Total retransmitted segments by cause",
			[]string{"cause"}, nil,
		),
		probesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "zero_window_probes_total"),
			"Total zero window probes sent",
			nil, nil,
		),
		corruptedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "corrupted_total"),
			"Total segments dropped due to checksum mismatch",
			nil, nil,
		),
		duplicatesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "duplicates_total"),
			"Total duplicate data segments received",
			nil, nil,
		),
		outOfWindowDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "out_of_window_total"),
			"Total segments discarded outside receive window",
			nil, nil,
		),
		dupAcksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "duplicate_acks_total"),
			"Total duplicate acknowledgements received",
			nil, nil,
		),
		illegalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "illegal_transitions_total"),
			"Total ignored illegal state machine transitions",
			nil, nil,
		),
		srttDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "srtt_seconds"),
			"Smoothed round trip time",
			nil, nil,
		),
		rtoDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "rto_seconds"),
			"Current retransmission timeout",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *ConnCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConnsDesc
	ch <- c.bytesSentDesc
	ch <- c.bytesRecvDesc
	ch <- c.segmentsSentDesc
	ch <- c.segmentsRecvDesc
	ch <- c.retransmitsDesc
	ch <- c.probesDesc
	ch <- c.corruptedDesc
	ch <- c.duplicatesDesc
	ch <- c.outOfWindowDesc
	ch <- c.dupAcksDesc
	ch <- c.illegalDesc
	ch <- c.srttDesc
	ch <- c.rtoDesc
}

// Collect 实现 prometheus.Collector
func (c *ConnCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.provider.AggregateStats()

	ch <- prometheus.MustNewConstMetric(c.activeConnsDesc, prometheus.GaugeValue,
		float64(c.provider.ConnCount()))
	ch <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue,
		float64(stats.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesRecvDesc, prometheus.CounterValue,
		float64(stats.BytesReceived))
	ch <- prometheus.MustNewConstMetric(c.segmentsSentDesc, prometheus.CounterValue,
		float64(stats.SegmentsSent))
	ch <- prometheus.MustNewConstMetric(c.segmentsRecvDesc, prometheus.CounterValue,
		float64(stats.SegmentsReceived))
	ch <- prometheus.MustNewConstMetric(c.retransmitsDesc, prometheus.CounterValue,
		float64(stats.TimeoutRetransmits), "timeout")
	ch <- prometheus.MustNewConstMetric(c.retransmitsDesc, prometheus.CounterValue,
		float64(stats.DupAckRetransmits), "dupack")
	ch <- prometheus.MustNewConstMetric(c.probesDesc, prometheus.CounterValue,
		float64(stats.ZeroWindowProbes))
	ch <- prometheus.MustNewConstMetric(c.corruptedDesc, prometheus.CounterValue,
		float64(stats.Corrupted))
	ch <- prometheus.MustNewConstMetric(c.duplicatesDesc, prometheus.CounterValue,
		float64(stats.Duplicates))
	ch <- prometheus.MustNewConstMetric(c.outOfWindowDesc, prometheus.CounterValue,
		float64(stats.OutOfWindow))
	ch <- prometheus.MustNewConstMetric(c.dupAcksDesc, prometheus.CounterValue,
		float64(stats.DupAcks))
	ch <- prometheus.MustNewConstMetric(c.illegalDesc, prometheus.CounterValue,
		float64(stats.IllegalTransitions))
	ch <- prometheus.MustNewConstMetric(c.srttDesc, prometheus.GaugeValue,
		stats.SRTT.Seconds())
	ch <- prometheus.MustNewConstMetric(c.rtoDesc, prometheus.GaugeValue,
		stats.RTO.Seconds())
}

// =============================================================================
// 信道模拟器收集器
// =============================================================================

// SimStatsProvider 模拟信道统计数据源
type SimStatsProvider interface {
	GetStats() channel.Stats
}

// SimCollector 不可靠信道模拟指标收集器
type SimCollector struct {
	provider SimStatsProvider

	sentDesc       *prometheus.Desc
	droppedDesc    *prometheus.Desc
	corruptedDesc  *prometheus.Desc
	duplicatedDesc *prometheus.Desc
	delayedDesc    *prometheus.Desc
}

// NewSimCollector 创建模拟信道收集器
func NewSimCollector(provider SimStatsProvider) *SimCollector {
	namespace := "rdt"
	subsystem := "simulator"

	return &SimCollector{
		provider: provider,

		sentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "datagrams_sent_total"),
			"Total datagrams submitted to the simulated channel",
			nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "datagrams_lost_total"),
			"Total datagrams dropped by loss injection",
			nil, nil,
		),
		corruptedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "datagrams_corrupted_total"),
			"Total datagrams corrupted by bit flip injection",
			nil, nil,
		),
		duplicatedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "datagrams_duplicated_total"),
			"Total datagrams duplicated",
			nil, nil,
		),
		delayedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "injected_delay_seconds_total"),
			"Total artificial delay injected into deliveries",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *SimCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sentDesc
	ch <- c.droppedDesc
	ch <- c.corruptedDesc
	ch <- c.duplicatedDesc
	ch <- c.delayedDesc
}

// Collect 实现 prometheus.Collector
func (c *SimCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.provider.GetStats()

	ch <- prometheus.MustNewConstMetric(c.sentDesc, prometheus.CounterValue, float64(stats.Sent))
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(stats.Lost))
	ch <- prometheus.MustNewConstMetric(c.corruptedDesc, prometheus.CounterValue, float64(stats.Corrupted))
	ch <- prometheus.MustNewConstMetric(c.duplicatedDesc, prometheus.CounterValue, float64(stats.Duplicated))
	ch <- prometheus.MustNewConstMetric(c.delayedDesc, prometheus.CounterValue, stats.TotalDelay.Seconds())
}
