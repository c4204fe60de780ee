package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *BookingHandler) {
	r.GET("/health", h.Health)

	bookings := r.Group("/api/bookings")
	{
		bookings.GET("/health", h.Health)
		bookings.POST("/reserve", h.Reserve)
		bookings.POST("/reserve-async", h.ReserveAsync)
		bookings.GET("/user/:user_id", h.UserBookings)
		bookings.DELETE("/:booking_id", h.Cancel)
	}
}

// NewRouter gin.Default 대신 slog 요청 로그 + recovery 를 붙인 엔진
func NewRouter(h *BookingHandler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())
	SetupRoutes(r, h)
	return r
}

func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
