package api

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	intconfig "bookingcore/internal/config"
	"bookingcore/internal/domain"
	h "bookingcore/internal/http/handlers"
	"bookingcore/internal/http/middleware"
	"bookingcore/internal/logger"
	"bookingcore/internal/metrics"
)

type Options struct {
	Env      intconfig.Env
	Log      logger.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Handler  *h.Handler
}

func NewRouter(o Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(o.Log, o.Metrics), gin.Recovery(), middleware.CORS(o.Env.CORSAllowedOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		o.Log.Warn("failed to set trusted proxies", "error", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	if o.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}

	hd := o.Handler
	api := r.Group("/api")
	{
		api.GET("/health", hd.Health)

		// Provider callbacks authenticate by signature, not by actor.
		api.POST("/webhooks/payment", hd.PaymentWebhook)

		bookings := api.Group("/bookings", middleware.Authenticate(o.Env.JWTSecret))
		bookings.POST("", hd.CreateBooking)
		bookings.GET("", hd.ListBookings)
		bookings.GET("/:id", hd.GetBooking)
		bookings.GET("/:id/history", hd.GetHistory)
		bookings.GET("/:id/ledger", hd.GetLedger)
		bookings.POST("/:id/status", hd.UpdateStatus)

		cancellation := bookings.Group("/:id/cancellation")
		cancellation.POST("/request", hd.RequestCancellation)
		cancellation.POST("/approve", middleware.RequireRole(domain.RoleAdmin), hd.ApproveCancellation)
		cancellation.POST("/reject", middleware.RequireRole(domain.RoleAdmin), hd.RejectCancellation)

		payment := bookings.Group("/:id/payment")
		payment.POST("/intent", hd.RecordPaymentIntent)
		payment.POST("/cash-collected", middleware.RequireRole(domain.RoleDriver, domain.RoleAdmin), hd.MarkCashCollected)

		refund := bookings.Group("/:id/refund")
		refund.POST("/initiate", middleware.RequireRole(domain.RoleAdmin), hd.InitiateRefund)
		refund.POST("/complete", middleware.RequireRole(domain.RoleAdmin), hd.CompleteRefund)
		refund.GET("/receipt", hd.GetRefundReceipt)
	}

	return r
}
