package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/alaskacg/tongass-listings/docs"
	"github.com/alaskacg/tongass-listings/internal/api/handler"
	"github.com/alaskacg/tongass-listings/internal/api/middleware"
	"github.com/alaskacg/tongass-listings/internal/auth"
)

// RouterOptions 路由装配参数
type RouterOptions struct {
	Mode        string
	ServiceName string
	// Gatherer /metrics 数据源，nil 时使用默认注册表
	Gatherer prometheus.Gatherer
	// RequestsPerMinute 发布与同步接口的每调用方限流
	RequestsPerMinute int
	Burst             int
	EnableSwagger     bool
}

// NewRouter 注册全部路由
func NewRouter(h *handler.Handler, verifier auth.TokenVerifier, roles middleware.AdminChecker, opts RouterOptions) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "tongass-listings"
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		otelgin.Middleware(opts.ServiceName),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/media/", "/metrics"})),
	)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/media/*key", h.Media)
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	optional := middleware.Auth(verifier, roles, false)
	required := middleware.Auth(verifier, roles, true)
	limited := middleware.RateLimit(opts.RequestsPerMinute, opts.Burst)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/listings", h.Browse)
		v1.GET("/listings/:id", optional, h.Get)
		v1.POST("/listings", required, limited, h.Submit)
		v1.DELETE("/listings/:id", required, h.Delete)
		v1.POST("/listings/:id/checkout", required, h.Checkout)
		v1.GET("/me/listings", required, h.ListMine)
		v1.POST("/sync-ecosystem", required, limited, h.SyncEcosystem)
		v1.POST("/payments/webhook", h.PaymentWebhook)
	}

	admin := v1.Group("/admin", required, middleware.RequireAdmin())
	{
		admin.GET("/listings", h.AdminListings)
		admin.POST("/listings/:id/approve", h.Approve)
		admin.POST("/listings/:id/reject", h.Reject)
		admin.DELETE("/listings/:id", h.Delete)
		admin.GET("/payments", h.AdminPayments)
		admin.GET("/stats", h.Stats)
		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings", h.UpdateSettings)
	}
	return r
}
