package audit

import (
	"context"

	"github.com/fleetkit/napi/internal/metrics"
)

// metricsAuditor wraps an Auditor, incrementing the audit event counter
// alongside whatever the wrapped sink does with the event.
type metricsAuditor struct {
	next Auditor
}

// WithMetrics wraps next so every emitted event also increments the
// napi_audit_events_total counter.
func WithMetrics(next Auditor) Auditor {
	if next == nil {
		return next
	}
	return &metricsAuditor{next: next}
}

func (m *metricsAuditor) Event(ctx context.Context, action, actor, object string, details map[string]any) {
	m.next.Event(ctx, action, actor, object, details)
	metrics.IncAudit(action)
}
