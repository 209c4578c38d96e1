package httpapi

import (
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nounforge/entitykernel/internal/kernel"
)

// NewRouter wires the demo HTTP surface, adapted from the teacher's
// http.NewRouter: gin engine, otelgin span middleware, trace/request
// id propagation, CORS, then route groups scoped under a tenant path
// segment (spec.md §6).
func NewRouter(mgr *kernel.Manager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("entitykernel"))
	r.Use(traceMiddleware())
	r.Use(corsMiddleware())

	a := &api{mgr: mgr}

	r.GET("/health", a.healthCheck)

	tenants := r.Group("/api/tenants/:tenantId", tenantMiddleware())
	{
		tenants.GET("", a.describeTenant)
		tenants.POST("/deactivate", a.deactivateTenant)
		tenants.POST("/reactivate", a.reactivateTenant)

		tenants.POST("/nouns/:noun", a.defineNoun)
		tenants.GET("/nouns", a.listNouns)
		tenants.GET("/nouns/:noun", a.getNoun)
		tenants.GET("/verbs", a.listVerbs)

		tenants.POST("/entities/:type", a.createEntity)
		tenants.GET("/entities/:type", a.listEntities)
		tenants.GET("/entities/:type/:id", a.getEntity)
		tenants.PATCH("/entities/:type/:id", a.updateEntity)
		tenants.DELETE("/entities/:type/:id", a.deleteEntity)
		tenants.POST("/entities/:type/:id/verbs/:verb", a.executeVerb)

		tenants.GET("/entities/:type/:id/history", a.reconstructEntity)
		tenants.GET("/entities/:type/:id/diff", a.diffEntity)

		tenants.GET("/events", a.queryEvents)

		tenants.POST("/subscriptions", a.registerSubscription)
		tenants.GET("/subscriptions", a.listSubscriptions)

		tenants.POST("/integration-hooks", a.registerHook)
		tenants.GET("/integration-hooks", a.listHooks)

		tenants.GET("/cdc", a.pollCDC)
	}

	return r
}
