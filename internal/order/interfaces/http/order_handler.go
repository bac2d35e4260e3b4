// Package http 提供结账与订单查询的 REST 接入
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	cartapp "github.com/wyfcoding/storefront/internal/cart/application"
	cartdomain "github.com/wyfcoding/storefront/internal/cart/domain"
	"github.com/wyfcoding/storefront/internal/order/application"
	"github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
)

// OrderHandler 结账与订单查询处理器
type OrderHandler struct {
	placement *application.PlacementService
	queries   *application.QueryService
	carts     *cartapp.CartApplicationService
}

func NewOrderHandler(placement *application.PlacementService, queries *application.QueryService, carts *cartapp.CartApplicationService) *OrderHandler {
	return &OrderHandler{placement: placement, queries: queries, carts: carts}
}

// RegisterRoutes 注册结账与订单路由
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout", h.Checkout)
	orders := r.Group("/orders")
	{
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
	}
}

type checkoutRequest struct {
	ContactEmail    string `json:"contact_email" binding:"required,email"`
	ContactName     string `json:"contact_name" binding:"required"`
	ContactPhone    string `json:"contact_phone"`
	City            string `json:"city" binding:"required"`
	PostalCode      string `json:"postal_code"`
	ShippingAddress string `json:"shipping_address" binding:"required"`
}

// Checkout 登录用户结账。匿名会话购物车先并入用户购物车再下单,
// 因此登录前加入购物车的商品不会丢。
func (h *OrderHandler) Checkout(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	if ident.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to check out"})
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if ident.SessionID != "" {
		if err := h.carts.MergeIntoUser(ctx, ident.SessionID, ident.UserID); err != nil {
			logger.Error(ctx, "cart merge before checkout failed", "error", err)
			h.respondError(c, err)
			return
		}
	}

	order, err := h.placement.Place(ctx, ident.UserID, domain.ContactInfo{
		Email:           req.ContactEmail,
		Name:            req.ContactName,
		Phone:           req.ContactPhone,
		City:            req.City,
		PostalCode:      req.PostalCode,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) List(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	if ident.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to view orders"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	orders, err := h.queries.ListForUser(c.Request.Context(), ident.UserID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Get(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	if ident.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to view orders"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	order, err := h.queries.GetForUser(c.Request.Context(), ident.UserID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      verr.Message,
			"shortfalls": verr.Shortfalls,
		})
	case errors.Is(err, cartdomain.ErrNoUserIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case db.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
