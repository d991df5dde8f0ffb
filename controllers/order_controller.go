package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shubhambandhovar/medszop-backend/middleware"
	"github.com/shubhambandhovar/medszop-backend/services"
)

type OrderController struct {
	orderService  *services.OrderService
	statusService *services.StatusService
	returnWindow  time.Duration
	env           string
}

func NewOrderController(orderService *services.OrderService, statusService *services.StatusService, returnWindow time.Duration, env string) *OrderController {
	return &OrderController{
		orderService:  orderService,
		statusService: statusService,
		returnWindow:  returnWindow,
		env:           env,
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateOrder assembles an order from the caller's cart.
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req services.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		oc.badRequest(ctx, "Invalid request", err)
		return
	}

	order, serviceErr := oc.orderService.CreateOrder(ctx.Request.Context(), userID, &req)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"order_id": order.ID, "order": order})
}

// GetOrders returns paginated orders for the authenticated user.
func (oc *OrderController) GetOrders(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	page, limit := parsePaginationParams(ctx)

	result, serviceErr := oc.orderService.GetUserOrders(ctx.Request.Context(), userID, page, limit)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetOrderByID returns one order for its owner or any staff role.
func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orderID, ok := parseOrderID(ctx)
	if !ok {
		return
	}

	order, serviceErr := oc.orderService.GetOrderByID(ctx.Request.Context(), userID, middleware.GetRole(ctx), orderID)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// UpdateStatus moves an order to a new status. Staff only; the route is
// role-gated in routes.
func (oc *OrderController) UpdateStatus(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orderID, ok := parseOrderID(ctx)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		oc.badRequest(ctx, "Invalid request", err)
		return
	}

	if serviceErr := oc.statusService.ApplyStatus(ctx.Request.Context(), orderID, req.Status, middleware.GetRole(ctx), userID); serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Order status updated"})
}

// CancelOrder cancels the caller's own order if it is still cancellable.
func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orderID, ok := parseOrderID(ctx)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			oc.badRequest(ctx, "Invalid request", err)
			return
		}
	}

	order, serviceErr := oc.orderService.CancelOrder(ctx.Request.Context(), orderID, userID, req.Reason)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// RequestReturn opens a return request on a delivered order.
func (oc *OrderController) RequestReturn(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orderID, ok := parseOrderID(ctx)
	if !ok {
		return
	}

	var req services.ReturnRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		oc.badRequest(ctx, "Invalid request", err)
		return
	}

	order, serviceErr := oc.orderService.RequestReturn(ctx.Request.Context(), orderID, userID, &req, oc.returnWindow)
	if serviceErr != nil {
		ctx.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) badRequest(ctx *gin.Context, msg string, err error) {
	if oc.env != "production" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
		return
	}
	ctx.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseOrderID(ctx *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID format"})
		return uuid.Nil, false
	}
	return orderID, true
}

// parsePaginationParams extracts and validates pagination parameters.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const MaxLimit = 100
	const DefaultPage = 1
	const DefaultLimit = 10

	pageInt := DefaultPage
	limitInt := DefaultLimit

	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("limit", "10")); err == nil && l > 0 {
		limitInt = l
		if limitInt > MaxLimit {
			limitInt = MaxLimit
		}
	}

	return pageInt, limitInt
}
