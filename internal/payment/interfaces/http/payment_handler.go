// Package http 提供支付发起与网关回调的 REST 接入
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wyfcoding/storefront/internal/payment/application"
	"github.com/wyfcoding/storefront/internal/payment/domain"
	"github.com/wyfcoding/storefront/pkg/db"
)

// PaymentHandler 支付 HTTP 处理器
type PaymentHandler struct {
	service *application.PaymentApplicationService
}

func NewPaymentHandler(service *application.PaymentApplicationService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes 注册支付路由
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("/:orderId", h.Pay)
		payments.GET("/:orderId", h.Get)
	}
}

// RegisterWebhook 注册网关回调,挂在 API 分组之外
func (h *PaymentHandler) RegisterWebhook(r *gin.Engine) {
	r.POST("/webhook/payment", h.Callback)
}

type payRequest struct {
	Method  string         `json:"method" binding:"required"`
	Details domain.Details `json:"details"`
}

// Pay 为订单发起支付并交给对应方式的处理器
func (h *PaymentHandler) Pay(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	payment, err := h.service.CreatePayment(ctx, orderID, method, req.Details)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if payment.Status == domain.StatusCompleted {
		// 重复进入支付页,原样返回已完成的支付
		c.JSON(http.StatusOK, payment)
		return
	}
	payment, err = h.service.Process(ctx, payment, req.Details)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	payment, err := h.service.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no payment for this order"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type callbackRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	OrderID       uint   `json:"order_id" binding:"required"`
	Succeeded     bool   `json:"succeeded"`
	FailureReason string `json:"failure_reason"`
}

// Callback 网关异步回调。重复回调是无害的,冲突回调被拒绝。
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := h.service.HandleGatewayCallback(c.Request.Context(), req.TransactionID, req.OrderID, req.Succeeded, req.FailureReason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": payment.Status})
}

func (h *PaymentHandler) orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("orderId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return uint(id), true
}

func (h *PaymentHandler) respondError(c *gin.Context, err error) {
	var cerr *domain.CallbackError
	switch {
	case errors.As(err, &cerr):
		c.JSON(http.StatusBadRequest, gin.H{"error": cerr.Error()})
	case db.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
