// Package http 提供购物车的 REST 接入
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/storefront/internal/cart/application"
	"github.com/wyfcoding/storefront/internal/cart/domain"
	"github.com/wyfcoding/storefront/internal/fanout"
	"github.com/wyfcoding/storefront/pkg/db"
	"github.com/wyfcoding/storefront/pkg/middleware"
)

// CartHandler 购物车 HTTP 处理器
type CartHandler struct {
	service *application.CartApplicationService
	events  fanout.Publisher
}

func NewCartHandler(service *application.CartApplicationService, events fanout.Publisher) *CartHandler {
	return &CartHandler{service: service, events: events}
}

// RegisterRoutes 注册购物车路由
func (h *CartHandler) RegisterRoutes(r *gin.RouterGroup) {
	cart := r.Group("/cart")
	{
		cart.GET("", h.Get)
		cart.POST("/items", h.AddItem)
		cart.PUT("/items/:productId", h.UpdateQuantity)
		cart.DELETE("/items/:productId", h.RemoveItem)
		cart.DELETE("", h.Clear)
		cart.POST("/repair", h.Repair)
	}
}

func owner(c *gin.Context) domain.OwnerKey {
	ident := middleware.GetIdentity(c)
	return domain.OwnerKey{UserID: ident.UserID, SessionID: ident.SessionID}
}

// ownerGroup 购物车变化通知投递的私有组
func ownerGroup(k domain.OwnerKey) string {
	if k.Resolved() {
		return fanout.UserGroup(k.UserID)
	}
	return fanout.SessionGroup(k.SessionID)
}

func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.service.GetOrCreate(c.Request.Context(), owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(cart))
}

type addItemRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := owner(c)
	cart, product, err := h.service.AddItem(c.Request.Context(), key, req.ProductID, req.Quantity, req.Size, req.Color)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Publish(c.Request.Context(), fanout.NewItemAdded(ownerGroup(key), fanout.ItemAddedPayload{
		ProductID:     req.ProductID,
		Name:          product.Name,
		Quantity:      req.Quantity,
		TotalQuantity: cart.Count(),
	}))
	c.JSON(http.StatusOK, cartView(cart))
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := owner(c)
	cart, err := h.service.UpdateQuantity(c.Request.Context(), key, productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Publish(c.Request.Context(), fanout.NewCartQuantityUpdated(ownerGroup(key), quantityPayload(cart, productID)))
	c.JSON(http.StatusOK, cartView(cart))
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	key := owner(c)
	cart, err := h.service.RemoveItem(c.Request.Context(), key, productID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.events.Publish(c.Request.Context(), fanout.NewCartQuantityUpdated(ownerGroup(key), quantityPayload(cart, productID)))
	c.JSON(http.StatusOK, cartView(cart))
}

// quantityPayload 取变化后的行状态,行已删除时数量与行小计为零
func quantityPayload(cart *domain.Cart, productID uint) fanout.CartQuantityPayload {
	p := fanout.CartQuantityPayload{
		ProductID:     productID,
		ItemSubtotal:  decimal.Zero,
		Subtotal:      cart.Subtotal(),
		TotalQuantity: cart.Count(),
	}
	if line := cart.FindByProduct(productID); line != nil {
		p.Quantity = line.Quantity
		p.ItemSubtotal = line.LineTotal()
	}
	return p
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context(), owner(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Repair 把每行数量压到当前库存以内,下架或售罄的行被移除
func (h *CartHandler) Repair(c *gin.Context) {
	cart, changed, err := h.service.CapToAvailable(c.Request.Context(), owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cartView(cart), "changed": changed})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoUserIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case db.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func cartView(cart *domain.Cart) gin.H {
	items := make([]gin.H, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, gin.H{
			"product_id": it.ProductID,
			"quantity":   it.Quantity,
			"unit_price": it.UnitPrice,
			"size":       it.SelectedSize,
			"color":      it.SelectedColor,
			"line_total": it.LineTotal(),
		})
	}
	return gin.H{
		"id":         cart.ID,
		"items":      items,
		"item_count": cart.Count(),
		"subtotal":   cart.Subtotal(),
	}
}
