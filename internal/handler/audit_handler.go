package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetkit/napi/internal/audit"
	"github.com/fleetkit/napi/internal/metrics"
)

type AuditExportProvider interface {
	ExportIntegrity(ctx gin.Context, limit int) (audit.IntegrityExport, error)
}

// AuditListHandler returns a gin handler listing recent audit events. Only
// admins may call it (enforced by RequireAdmin on the route); the current
// audit schema records events globally, not per tenant, so there is no
// tenant-scoped filter to apply here.
func AuditListHandler(aud audit.Auditor) gin.HandlerFunc {
	sa, _ := aud.(*audit.SqliteAuditor)
	return func(c *gin.Context) {
		if sa == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "audit log listing not supported for this auditor"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit < 1 || limit > 500 {
			limit = 50
		}

		events, err := sa.ListRecent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit events"})
			return
		}
		total, err := sa.Count(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count audit events"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": events,
			"pagination": gin.H{
				"limit": limit,
				"total": total,
			},
		})
	}
}

// AuditIntegrityHandler returns a gin handler exposing chain head + anchors.
func AuditIntegrityHandler(aud audit.Auditor) gin.HandlerFunc {
	sa, _ := aud.(*audit.SqliteAuditor) // if not sqlite returns 501
	return func(c *gin.Context) {
		start := time.Now()
		anchorsParam := c.Query("anchors")
		limit := 20
		if anchorsParam != "" {
			if v, err := strconv.Atoi(anchorsParam); err == nil && v > 0 && v <= 500 {
				limit = v
			}
		}
		if sa == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "integrity export not supported for this auditor"})
			return
		}
		exp, err := sa.ExportIntegrity(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export integrity"})
			return
		}
		c.JSON(http.StatusOK, exp)
		metrics.ObserveIntegrityExport(time.Since(start).Seconds())
	}
}
