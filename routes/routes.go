package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubhambandhovar/medszop-backend/controllers"
	"github.com/shubhambandhovar/medszop-backend/middleware"
)

// Register wires the full HTTP surface. The webhook route stays outside the
// auth group: the gateway authenticates with its body signature, not a JWT.
func Register(
	r *gin.Engine,
	orderController *controllers.OrderController,
	paymentController *controllers.PaymentController,
	jwtSecret []byte,
	logger *zap.Logger,
) {
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RateLimitMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/payments/webhook", paymentController.HandleWebhook)

	auth := middleware.AuthMiddleware(jwtSecret)

	orders := r.Group("/orders")
	orders.Use(auth)
	orders.POST("", orderController.CreateOrder)
	orders.GET("", orderController.GetOrders)
	orders.GET("/:id", orderController.GetOrderByID)
	orders.PUT("/:id/status",
		middleware.RequireRoles("pharmacy", "delivery", "admin"),
		orderController.UpdateStatus)
	orders.POST("/:id/cancel", orderController.CancelOrder)
	orders.POST("/:id/return", orderController.RequestReturn)

	payments := r.Group("/payments")
	payments.Use(auth)
	payments.POST("/create-order", paymentController.CreatePaymentOrder)
	payments.POST("/verify", paymentController.VerifyPayment)
	payments.POST("/refund", paymentController.RefundPayment)
}
