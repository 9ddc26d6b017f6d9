package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 权限子系统的 Prometheus 指标
type Metrics struct {
	AuthzDecisionsTotal    *prometheus.CounterVec
	ButtonChecksTotal      *prometheus.CounterVec
	GrantReplacementsTotal *prometheus.CounterVec
	AuditWritesTotal       *prometheus.CounterVec
	AuditCleanupDeleted    prometheus.Counter
	PermissionSyncTotal    *prometheus.CounterVec
	PermissionSyncDuration prometheus.Histogram
	HTTPRequestsTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New 创建并注册所有指标
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_admin_authz_decisions_total",
				Help: "Authorization gate decisions by result and reason",
			},
			[]string{"result", "reason"},
		),
		ButtonChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_admin_button_permission_checks_total",
				Help: "Fine-grained button permission checks by result",
			},
			[]string{"result"},
		),
		GrantReplacementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_admin_grant_replacements_total",
				Help: "Batch grant replacements by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_admin_audit_writes_total",
				Help: "Audit log writes by outcome",
			},
			[]string{"outcome"},
		),
		AuditCleanupDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sales_admin_audit_cleanup_deleted_total",
				Help: "Audit log rows removed by retention cleanup",
			},
		),
		PermissionSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_admin_permission_sync_routes_total",
				Help: "Route permissions reconciled by outcome",
			},
			[]string{"outcome"},
		),
		PermissionSyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sales_admin_permission_sync_duration_seconds",
				Help:    "Duration of a full route scan and reconcile",
				Buckets: prometheus.DefBuckets,
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_admin_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.AuthzDecisionsTotal,
		m.ButtonChecksTotal,
		m.GrantReplacementsTotal,
		m.AuditWritesTotal,
		m.AuditCleanupDeleted,
		m.PermissionSyncTotal,
		m.PermissionSyncDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

// NewNop 创建使用独立注册表的指标，用于测试与命令行工具
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAuthz 记录鉴权结果
func (m *Metrics) RecordAuthz(allowed bool, reason string) {
	result := "allow"
	if !allowed {
		result = "deny"
	}
	m.AuthzDecisionsTotal.WithLabelValues(result, reason).Inc()
}

// RecordButtonCheck 记录按钮权限检查结果
func (m *Metrics) RecordButtonCheck(allowed bool) {
	result := "allow"
	if !allowed {
		result = "deny"
	}
	m.ButtonChecksTotal.WithLabelValues(result).Inc()
}

// RecordGrantReplacement 记录批量授权替换
func (m *Metrics) RecordGrantReplacement(kind string, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "failed"
	}
	m.GrantReplacementsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordAuditWrite 记录审计写入
func (m *Metrics) RecordAuditWrite(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.AuditWritesTotal.WithLabelValues(outcome).Inc()
}
