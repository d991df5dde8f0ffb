package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shubhambandhovar/medszop-backend/services"
)

type PaymentController struct {
	paymentService *services.PaymentService
	env            string
}

func NewPaymentController(paymentService *services.PaymentService, env string) *PaymentController {
	return &PaymentController{paymentService: paymentService, env: env}
}

type createPaymentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type refundRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	Reason  string `json:"reason"`
}

// CreatePaymentOrder creates the gateway payment intent for an order.
func (pc *PaymentController) CreatePaymentOrder(ctx *gin.Context) {
	var req createPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		pc.badRequest(ctx, "Invalid request", err)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID format"})
		return
	}

	resp, serviceErr := pc.paymentService.CreatePaymentOrder(ctx.Request.Context(), orderID)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// VerifyPayment validates the checkout signature and confirms the order.
func (pc *PaymentController) VerifyPayment(ctx *gin.Context) {
	var req services.VerifyPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		pc.badRequest(ctx, "Invalid request", err)
		return
	}

	resp, serviceErr := pc.paymentService.VerifyPayment(ctx.Request.Context(), &req)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// RefundPayment initiates a full refund for a captured payment.
func (pc *PaymentController) RefundPayment(ctx *gin.Context) {
	var req refundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		pc.badRequest(ctx, "Invalid request", err)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID format"})
		return
	}

	refund, serviceErr := pc.paymentService.RefundPayment(ctx.Request.Context(), orderID, req.Reason)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"refund": refund})
}

// HandleWebhook receives gateway callbacks. The signature is verified over
// the raw body, so the body must not be parsed before verification.
func (pc *PaymentController) HandleWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}
	signature := ctx.GetHeader("x-razorpay-signature")

	if serviceErr := pc.paymentService.HandleWebhook(ctx.Request.Context(), body, signature); serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.String(http.StatusOK, "ok")
}

func (pc *PaymentController) badRequest(ctx *gin.Context, msg string, err error) {
	if pc.env != "production" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
		return
	}
	ctx.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
