package http

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mbetancur/convoca/internal/cache"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	"github.com/mbetancur/convoca/internal/http/handlers"
	"github.com/mbetancur/convoca/internal/http/middlewares"
	"github.com/mbetancur/convoca/internal/management"
	"github.com/mbetancur/convoca/internal/observability"
	"github.com/mbetancur/convoca/internal/registration"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Deps bundles everything the router wires together.
type Deps struct {
	Engine     *registration.Engine
	Management *management.Service
	Auth       *middlewares.AuthMiddleware
	Limiter    *middlewares.RateLimiter
	Prom       *observability.Prom
	PromReg    *prometheus.Registry
	DB         handlers.Pinger
	StatsCache *cache.Cache[inscription.Stats]

	AllowedOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("convoca"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	// health + metrics
	health := handlers.NewHealthHandler(d.DB)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.PromReg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.PromReg, promhttp.HandlerOpts{})))
	}

	events := handlers.NewEventsHandler(d.Management)
	subevents := handlers.NewSubEventsHandler(d.Management)
	registrations := handlers.NewRegistrationsHandler(d.Engine, d.Management, d.Management, d.StatsCache)
	roles := handlers.NewRolesHandler(d.Management)

	requireAuth := d.Auth.RequireAuth()
	limited := func() gin.HandlerFunc {
		if d.Limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return d.Limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)
	}()

	// public reads
	r.GET("/events", events.List)
	r.GET("/events/:id", events.Get)
	r.GET("/events/:id/subevents", subevents.ListByEvent)
	r.GET("/events/:id/stats", registrations.Stats)
	r.GET("/subevents/:subEventId", subevents.Get)
	r.GET("/subevents/:subEventId/stats", registrations.SubStats)

	// authenticated
	authed := r.Group("/", requireAuth, limited)

	authed.POST("/events", events.Create)
	authed.PATCH("/events/:id/status", events.ChangeStatus)
	authed.PATCH("/events/:id/blocked", events.SetBlocked)
	authed.PATCH("/events/:id/registrations-open", events.SetRegistrationsOpen)

	authed.POST("/events/:id/subevents", subevents.Create)
	authed.PUT("/subevents/:subEventId", subevents.Update)
	authed.DELETE("/subevents/:subEventId", subevents.Delete)
	authed.PATCH("/subevents/:subEventId/status", subevents.ChangeStatus)

	authed.POST("/events/:id/registrations", registrations.Register)
	authed.DELETE("/events/:id/registrations", registrations.Cancel)
	authed.GET("/events/:id/registrations", registrations.Attendance)
	authed.GET("/events/:id/registrations/me", registrations.IsRegistered)
	authed.POST("/subevents/:subEventId/registrations", registrations.RegisterSub)
	authed.DELETE("/subevents/:subEventId/registrations", registrations.CancelSub)
	authed.GET("/subevents/:subEventId/registrations", registrations.SubAttendance)
	authed.GET("/me/registrations", registrations.MyRegistrations)
	authed.GET("/me/subevent-registrations", registrations.MySubRegistrations)

	authed.POST("/events/:id/roles/invitations", roles.Invite)
	authed.POST("/roles/:grantId/accept", roles.Accept)
	authed.DELETE("/roles/:grantId", roles.Revoke)

	return r
}
