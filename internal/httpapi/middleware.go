package httpapi

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/nounforge/entitykernel/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// corsMiddleware mirrors the teacher's middleware.CORS, loosened to an
// env-free default since this demo surface has no fixed frontend
// origin to allowlist.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Entitykernel-Version"},
		AllowCredentials: false,
	})
}

// traceMiddleware attaches a trace/request id to the context and
// response headers, adapted from the teacher's
// middleware.AttachTraceContext.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" {
			spanCtx := trace.SpanContextFromContext(c.Request.Context())
			if spanCtx.HasTraceID() {
				traceID = spanCtx.TraceID().String()
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// tenantMiddleware resolves the :tenantId path segment into
// ctxutil.TenantData. Tenant authentication/resolution strategy itself
// is out of scope (spec.md §1); this demo trusts the path segment.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.Param("tenantId"))
		if tenantID == "" {
			badRequest(c, "tenantId path segment is required")
			c.Abort()
			return
		}
		ctx := ctxutil.WithTenantData(c.Request.Context(), &ctxutil.TenantData{TenantID: tenantID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
