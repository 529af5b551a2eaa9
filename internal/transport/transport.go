package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/transport/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Handlers struct {
	Booking *BookingHandler
	Payment *PaymentHandler
	Meta    *MetaHandler
}

type RouterOptions struct {
	Tokens         middleware.TokenParser
	Redis          *redis.Client // nil disables Idempotency-Key support
	IdempotencyTTL time.Duration
	RequestTimeout time.Duration
	MetricsPath    string
	MetricsHandler http.Handler
}

func InitRoutes(h Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.GET("/health", h.Meta.Health)
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	api := router.Group("/api/v1")
	api.GET("/meta/labels", h.Meta.Labels)

	authed := api.Group("")
	authed.Use(middleware.Auth(opts.Tokens))
	authed.Use(middleware.Idempotency(opts.Redis, opts.IdempotencyTTL))
	{
		bookings := authed.Group("/bookings")
		{
			bookings.POST("", h.Booking.CreateBooking)
			bookings.GET("", h.Booking.GetMyBookings)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.PATCH("/:id/confirm", h.Booking.ConfirmBooking)
			bookings.PATCH("/:id/cancel", h.Booking.CancelBooking)
			bookings.PATCH("/:id/complete", h.Booking.CompleteBooking)
		}

		payments := authed.Group("/payments")
		{
			payments.POST("/bookings/:bookingId", h.Payment.CreatePayment)
			payments.GET("/bookings/:bookingId", h.Payment.GetBookingPayments)
			payments.GET("/:id", h.Payment.GetPayment)
			payments.POST("/:id/confirm", h.Payment.ConfirmPayment)
			payments.POST("/:id/cancel", h.Payment.CancelPayment)
			payments.POST("/:id/refund", middleware.AdminOnly(), h.Payment.RefundPayment)
		}

		admin := authed.Group("/admin")
		admin.Use(middleware.AdminOnly())
		{
			admin.GET("/bookings", h.Booking.ListBookings)
			admin.PATCH("/bookings/:id/status", h.Booking.UpdateStatus)
			admin.PATCH("/bookings/:id/payment-status", h.Booking.UpdatePaymentStatus)
			admin.DELETE("/bookings/:id", h.Booking.DeleteBooking)
		}
	}

	return router
}
