// Package server exposes the passport service over HTTP: the JSON API used
// by the company, supplier, verifier and admin portals, the public passport
// view, health and metrics.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/actions"
	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/export"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// RoleHeader carries the portal a request comes from.
const RoleHeader = "X-Passport-Role"

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Service  *compliance.Service
	Actions  *actions.Service
	Renderer *export.Renderer
	Logger   *zap.Logger

	// Registry serves /metrics and receives the HTTP collectors. Nil
	// disables both.
	Registry *prometheus.Registry

	// DefaultRole applies to API requests without a role header.
	DefaultRole types.Role
}

type handler struct {
	svc      *compliance.Service
	actions  *actions.Service
	renderer *export.Renderer
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &export.Renderer{}
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = types.RoleCompany
	}
	h := &handler{svc: cfg.Service, actions: cfg.Actions, renderer: cfg.Renderer}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))
	if cfg.Registry != nil {
		router.Use(requestMetrics(cfg.Registry))
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	public := router.Group("/public")
	{
		public.GET("/products/:id", h.publicPassport)
		public.GET("/products/:id/passport.png", h.publicImage)
	}

	api := router.Group("/api")
	api.Use(roleFromHeader(cfg.DefaultRole))
	{
		api.GET("/products/:id/traces", h.listTraces)
		api.GET("/products/:id/tree", h.tree)
		api.GET("/products/:id/check", h.check)
		api.GET("/products/:id/qrcodes", h.listQRCodes)
		api.POST("/products/:id/compliance-check", h.complianceCheck)

		api.POST("/traces", h.createTrace)
		api.GET("/traces/:id", h.getTrace)
		api.PUT("/traces/:id", h.updateTrace)
		api.DELETE("/traces/:id", h.deleteTrace)
		api.POST("/traces/:id/status", h.transition)
		api.GET("/traces/:id/history", h.history)

		api.GET("/suppliers", h.listSuppliers)
		api.POST("/suppliers", h.addSupplier)

		api.POST("/actions/qr-code", h.generateQRCode)
		api.POST("/actions/test-email", h.sendTestEmail)
	}
	return router
}

func roleFromHeader(fallback types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(RoleHeader)
		if raw == "" {
			c.Set("role", fallback)
			c.Next()
			return
		}
		role, err := types.ParseRole(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_role", err)
			return
		}
		c.Set("role", role)
		c.Next()
	}
}

func roleOf(c *gin.Context) types.Role {
	if v, ok := c.Get("role"); ok {
		if r, ok := v.(types.Role); ok {
			return r
		}
	}
	return ""
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func requestMetrics(reg prometheus.Registerer) gin.HandlerFunc {
	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "passport_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
