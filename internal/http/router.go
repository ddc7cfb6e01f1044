package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/parcelhub/internal/auth"
	"github.com/geocoder89/parcelhub/internal/cache"
	"github.com/geocoder89/parcelhub/internal/config"
	"github.com/geocoder89/parcelhub/internal/domain/role"
	"github.com/geocoder89/parcelhub/internal/http/handlers"
	"github.com/geocoder89/parcelhub/internal/http/middlewares"
	"github.com/geocoder89/parcelhub/internal/observability"
	"github.com/geocoder89/parcelhub/internal/queue/redisclient"
	"github.com/geocoder89/parcelhub/internal/repo/postgres"
	"github.com/geocoder89/parcelhub/internal/security"
	"github.com/geocoder89/parcelhub/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	maxBodyBytes = 1 << 20
	statsTTL     = 30 * time.Second
)

type Deps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redisclient.Client
	Sessions session.Backend
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(otelgin.Middleware("parcelhub-api"))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.CORS(middlewares.CORSConfig{AllowedOrigins: d.Cfg.CORSAllowedOrigins}))
	r.Use(middlewares.SecurityHeaders(d.Cfg.Env == "prod"))
	r.Use(middlewares.LimitBody(maxBodyBytes))
	r.Use(middlewares.RequireJSON())

	sessions := middlewares.NewSessions(d.Sessions, d.Cfg.SessionTTL, d.Cfg.Env == "prod", d.Log)
	r.Use(sessions.Load())

	// health
	deps := map[string]handlers.Pinger{}
	if d.Pool != nil {
		deps["postgres"] = func(ctx context.Context) error { return d.Pool.Ping(ctx) }
	}
	if d.Redis != nil {
		deps["redis"] = d.Redis.Ping
	}
	health := handlers.NewHealthHandler(deps)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// repositories
	jobsRepo := postgres.NewJobsRepo(d.Pool, d.Prom)
	usersRepo := postgres.NewUsersRepo(d.Pool, d.Prom)
	refreshRepo := postgres.NewRefreshTokensRepo(d.Pool, d.Prom)
	stationsRepo := postgres.NewStationsRepo(d.Pool, d.Prom)
	parcelsRepo := postgres.NewParcelsRepo(d.Pool, jobsRepo, d.Prom)
	paymentsRepo := postgres.NewPaymentsRepo(d.Pool, jobsRepo, d.Prom)
	dashboardRepo := postgres.NewDashboardRepo(d.Pool, parcelsRepo, d.Prom)

	c := cache.New(statsTTL)
	sanitizer := security.NewSanitizer()
	jwtManager := auth.NewManager(d.Cfg.JWTSecret, d.Cfg.AccessTTL, d.Cfg.RefreshTTL)
	authMW := middlewares.NewAuthMiddleware(jwtManager)
	requireAuth := authMW.RequireAuth()
	staff := authMW.RequireRole(role.Admin, role.Superadmin)
	superadmin := authMW.RequireRole(role.Superadmin)

	// handlers
	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager, refreshRepo, sessions, sanitizer, d.Cfg, d.Log)
	profileHandler := handlers.NewProfileHandler(usersRepo, sanitizer, sessions)
	usersHandler := handlers.NewUsersHandler(usersRepo, sanitizer, sessions)
	stationsHandler := handlers.NewStationsHandler(stationsRepo, sanitizer)
	parcelsHandler := handlers.NewParcelsHandler(parcelsRepo, c, sanitizer)
	paymentsHandler := handlers.NewPaymentsHandler(paymentsRepo, parcelsRepo, c)
	dashboardHandler := handlers.NewDashboardHandler(dashboardRepo, c)
	viewsHandler := handlers.NewViewsHandler(dashboardHandler, parcelsRepo)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobsRepo)

	// auth
	authLimiter := middlewares.NewRateLimiter(d.Cfg.AuthRateLimit, d.Cfg.AuthRateBurst)
	authGroup := r.Group("/auth", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.PUT("/change-password/", requireAuth, authHandler.ChangePassword)

	// profile
	profile := r.Group("/profile", requireAuth)
	profile.GET("/", profileHandler.Get)
	profile.PATCH("/", profileHandler.Update)
	profile.DELETE("/", profileHandler.Delete)

	// users
	users := r.Group("/users", requireAuth)
	users.GET("/", staff, usersHandler.List)
	users.POST("/", superadmin, usersHandler.Create)
	users.PATCH("/:id/activate/", superadmin, usersHandler.Activate)
	users.PATCH("/:id/deactivate/", superadmin, usersHandler.Deactivate)

	// stations
	stations := r.Group("/stations", requireAuth)
	stations.GET("/", stationsHandler.List)
	stations.GET("/:code/", stationsHandler.Get)
	stations.POST("/", superadmin, stationsHandler.Create)
	stations.PATCH("/:code/", superadmin, stationsHandler.Update)
	stations.PATCH("/:code/toggle-active/", superadmin, stationsHandler.ToggleActive)

	// parcels; tracking is public
	r.GET("/parcels/track/:trackingCode/", parcelsHandler.Track)

	parcels := r.Group("/parcels", requireAuth)
	parcels.POST("/", parcelsHandler.Create)
	parcels.GET("/", parcelsHandler.List)
	parcels.GET("/stats/", staff, parcelsHandler.Stats)
	parcels.GET("/:id/", parcelsHandler.Get)
	parcels.POST("/:id/advance/", staff, parcelsHandler.Advance)
	parcels.POST("/:id/fail/", staff, parcelsHandler.Fail)

	// payments
	payments := r.Group("/payments", requireAuth, staff)
	payments.POST("/", paymentsHandler.Create)
	payments.GET("/", paymentsHandler.List)
	payments.GET("/:id/", paymentsHandler.Get)
	payments.POST("/:id/complete/", paymentsHandler.Complete)
	payments.POST("/:id/refund/", paymentsHandler.Refund)
	payments.POST("/:id/fail/", paymentsHandler.Fail)

	// dashboards
	dashboard := r.Group("/dashboard", requireAuth)
	dashboard.GET("/admin/", authMW.RequireRole(role.Admin), dashboardHandler.Admin)
	dashboard.GET("/superadmin/", superadmin, dashboardHandler.Superadmin)

	// navigation views
	r.GET(role.LoginPath, viewsHandler.Login)
	r.GET(role.AdminDashboardPath, middlewares.RequireView([]role.Role{role.Admin}, ""), viewsHandler.AdminDashboard)
	r.GET(role.SuperadminDashboardPath, middlewares.RequireView([]role.Role{role.Superadmin}, ""), viewsHandler.SuperadminDashboard)
	r.GET(role.DeliveriesPath, middlewares.RequireView(role.All(), ""), viewsHandler.MyDeliveries)

	// ops
	jobs := r.Group("/admin/jobs", requireAuth, superadmin)
	jobs.GET("", adminJobsHandler.List)
	jobs.GET("/stats", adminJobsHandler.Stats)
	jobs.POST("/reprocess-dead", adminJobsHandler.ReprocessDead)
	jobs.GET("/:id", adminJobsHandler.GetByID)
	jobs.POST("/:id/retry", adminJobsHandler.Retry)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondError(ctx, http.StatusNotFound, "not_found", "Route not found", nil)
	})

	return r
}
