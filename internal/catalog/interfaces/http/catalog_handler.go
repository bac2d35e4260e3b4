// Package http 提供商品目录的只读 REST 接入
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wyfcoding/storefront/internal/catalog/application"
)

// CatalogHandler 商品目录处理器
type CatalogHandler struct {
	service           *application.CatalogService
	lowStockThreshold int
}

func NewCatalogHandler(service *application.CatalogService, lowStockThreshold int) *CatalogHandler {
	return &CatalogHandler{service: service, lowStockThreshold: lowStockThreshold}
}

// RegisterRoutes 注册目录路由
func (h *CatalogHandler) RegisterRoutes(r *gin.RouterGroup) {
	products := r.Group("/products")
	{
		products.GET("", h.List)
		products.GET("/:id", h.Get)
	}
	admin := r.Group("/admin/products")
	{
		admin.POST("/:id/restock", h.Restock)
		admin.GET("/low-stock", h.ListLowStock)
	}
}

func (h *CatalogHandler) List(c *gin.Context) {
	categoryID, _ := strconv.ParseUint(c.DefaultQuery("category_id", "0"), 10, 32)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	products, total, err := h.service.ListProducts(c.Request.Context(), uint(categoryID), (page-1)*size, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": total, "page": page, "size": size})
}

func (h *CatalogHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	product, err := h.service.GetProduct(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, product)
}

type restockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *CatalogHandler) Restock(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Restock(c.Request.Context(), uint(id), req.Quantity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandler) ListLowStock(c *gin.Context) {
	threshold := h.lowStockThreshold
	if v := c.Query("threshold"); v != "" {
		if t, err := strconv.Atoi(v); err == nil && t > 0 {
			threshold = t
		}
	}
	products, err := h.service.ListLowStock(c.Request.Context(), threshold)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "products": products})
}
