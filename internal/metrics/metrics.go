package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	reqCounter   = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "status"})
	reqLatency = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "napi",
		Name:      "http_request_duration_seconds",
		Help:      "Request duration seconds",
		Buckets:   prom.DefBuckets,
	}, []string{"method", "path"})
	auditEvents = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_events_total",
		Help:      "Audit events emitted",
	}, []string{"action"})
	auditEvictions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_evictions_total",
		Help:      "Total audit events evicted by retention pruning, by sink",
	}, []string{"source"})
	auditFailures = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_failures_total",
		Help:      "Total audit persistence failures (best-effort sinks), by cause",
	}, []string{"reason"})
	auditInsertDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "napi",
		Name:      "audit_insert_duration_seconds",
		Help:      "Duration of a single audit event write, by sink and outcome",
		Buckets:   prom.DefBuckets,
	}, []string{"source", "status"})
	chainHeadWrites = prom.NewCounter(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_chain_head_writes_total",
		Help:      "Total successful hash-chained audit event writes",
	})
	chainAnchors = prom.NewCounter(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_chain_anchors_total",
		Help:      "Total chain anchor snapshots recorded",
	})
	chainVerification = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "napi",
		Name:      "audit_chain_verification_duration_seconds",
		Help:      "Duration of a hash chain verification pass, by result",
		Buckets:   prom.DefBuckets,
	}, []string{"result"})
	auditIntegrityExport = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "napi",
		Name:      "audit_integrity_export_duration_seconds",
		Help:      "Duration of audit chain integrity export requests",
		Buckets:   prom.DefBuckets,
	})

	// provisionAttempts counts each NIC service create/update/delete call,
	// labeled by outcome (ok, conflict, fatal, rejected).
	provisionAttempts = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "provision_attempts_total",
		Help:      "Total NIC/IP provisioning attempts by outcome",
	}, []string{"outcome"})
	provisionRetries = prom.NewCounter(prom.CounterOpts{
		Namespace: "napi",
		Name:      "provision_retries_total",
		Help:      "Total provisioning retries triggered by version or unique conflicts",
	})
	provisionDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "napi",
		Name:      "provision_duration_seconds",
		Help:      "End-to-end duration of a NICAndIP provisioning call, including retries",
		Buckets:   prom.DefBuckets,
	})
	storeConflicts = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "store_conflicts_total",
		Help:      "Total store-level conflicts observed during provisioning, by kind",
	}, []string{"kind"})

	auditWorkerRestarts = prom.NewCounter(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_async_worker_restarts_total",
		Help:      "Total async audit dispatch workers restarted after a panic",
	})
	auditDropped = prom.NewCounter(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_async_dropped_total",
		Help:      "Total audit events dropped by the async dispatcher",
	})
	auditDroppedReason = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "napi",
		Name:      "audit_async_dropped_reason_total",
		Help:      "Total audit events dropped by the async dispatcher, by reason",
	}, []string{"reason"})
	auditQueueDepth = prom.NewGauge(prom.GaugeOpts{
		Namespace: "napi",
		Name:      "audit_async_queue_depth",
		Help:      "Current depth of the async audit dispatch queue",
	})
	auditQueueHighWatermark = prom.NewGauge(prom.GaugeOpts{
		Namespace: "napi",
		Name:      "audit_async_queue_high_watermark",
		Help:      "Highest observed depth of the async audit dispatch queue",
	})
	auditDispatchDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "napi",
		Name:      "audit_async_dispatch_duration_seconds",
		Help:      "Time an event spends queued before being dispatched to the underlying auditor",
		Buckets:   prom.DefBuckets,
	})
)

// Register all metrics (idempotent safe to call once at startup).
func Register() {
	registerOnce.Do(func() {
		prom.MustRegister(
			reqCounter, reqLatency,
			auditEvents, auditEvictions, auditFailures, auditIntegrityExport,
			auditInsertDuration, chainHeadWrites, chainAnchors, chainVerification,
			provisionAttempts, provisionRetries, provisionDuration, storeConflicts,
			auditWorkerRestarts, auditDropped, auditDroppedReason, auditQueueDepth,
			auditQueueHighWatermark, auditDispatchDuration,
		)
	})
}

// GinMiddleware instruments incoming HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqLatency.WithLabelValues(c.Request.Method, path).Observe(duration)
		reqCounter.WithLabelValues(c.Request.Method, path, fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}

// Handler returns a standard promhttp handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}

// IncAudit increments audit event counter for given action.
func IncAudit(action string) { auditEvents.WithLabelValues(action).Inc() }

// AddAuditEviction records n audit events pruned from source ("memory",
// "sqlite") by a retention policy.
func AddAuditEviction(source string, n int) { auditEvictions.WithLabelValues(source).Add(float64(n)) }

// IncAuditFailure increments the failure counter for the given cause
// ("exec", "prune", "prune_age", "prune_anchor", "anchor_insert", ...).
func IncAuditFailure(reason string) { auditFailures.WithLabelValues(reason).Inc() }

// ObserveAuditInsert records the duration of a single audit event write to
// source, labeled by outcome ("success"/"failure").
func ObserveAuditInsert(source, status string, seconds float64) {
	auditInsertDuration.WithLabelValues(source, status).Observe(seconds)
}

// IncChainHead counts one successful hash-chained audit write.
func IncChainHead() { chainHeadWrites.Inc() }

// IncChainAnchor counts one chain anchor snapshot recorded.
func IncChainAnchor() { chainAnchors.Inc() }

// ObserveChainVerification records the duration of a hash chain
// verification pass, labeled by whether it succeeded.
func ObserveChainVerification(seconds float64, ok bool) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	chainVerification.WithLabelValues(result).Observe(seconds)
}

// ObserveIntegrityExport records the duration of an audit integrity export request.
func ObserveIntegrityExport(seconds float64) { auditIntegrityExport.Observe(seconds) }

// IncProvisionAttempt records the outcome of one NIC service call. outcome
// is one of "ok", "conflict", "fatal", "rejected".
func IncProvisionAttempt(outcome string) { provisionAttempts.WithLabelValues(outcome).Inc() }

// IncProvisionRetry records one service call that ended with a store
// conflict error; retry iterations inside the driver are not counted.
func IncProvisionRetry() { provisionRetries.Inc() }

// ObserveProvisionDuration records the total wall time of a NICAndIP call.
func ObserveProvisionDuration(seconds float64) { provisionDuration.Observe(seconds) }

// IncStoreConflict records a store-level conflict by kind ("version",
// "unique").
func IncStoreConflict(kind string) { storeConflicts.WithLabelValues(kind).Inc() }

// IncAuditWorkerRestart counts an async audit worker restarted after a panic.
func IncAuditWorkerRestart() { auditWorkerRestarts.Inc() }

// IncAuditDropped counts one audit event dropped by the async dispatcher.
func IncAuditDropped() { auditDropped.Inc() }

// IncAuditDroppedReason counts one audit event dropped by the async
// dispatcher, labeled by reason ("full").
func IncAuditDroppedReason(reason string) { auditDroppedReason.WithLabelValues(reason).Inc() }

// SetAuditQueueDepth reports the current depth of the async audit dispatch
// queue.
func SetAuditQueueDepth(n int) { auditQueueDepth.Set(float64(n)) }

// SetAuditQueueHighWatermark reports the highest observed depth of the async
// audit dispatch queue.
func SetAuditQueueHighWatermark(n int) { auditQueueHighWatermark.Set(float64(n)) }

// ObserveAuditDispatch records how long an event waited in the async audit
// queue before being dispatched.
func ObserveAuditDispatch(seconds float64) { auditDispatchDuration.Observe(seconds) }
