// Package domain 包含订单的领域模型与下单错误分类
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusFailed    OrderStatus = "Failed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Order 订单实体。除 Status 与支付关联外创建后不可变；
// 金额与联系/收货信息都是下单时刻的冻结值。
type Order struct {
	gorm.Model
	// 对外订单号
	OrderNumber string `gorm:"column:order_number;type:varchar(48);uniqueIndex;not null" json:"order_number"`
	// 下单用户
	UserID string `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	// 下单时间
	OrderDate time.Time `gorm:"column:order_date;not null" json:"order_date"`
	// 订单状态
	Status OrderStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	// 商品小计
	Subtotal decimal.Decimal `gorm:"column:subtotal;type:decimal(20,8);not null" json:"subtotal"`
	// 运费
	ShippingFee decimal.Decimal `gorm:"column:shipping_fee;type:decimal(20,8);not null" json:"shipping_fee"`
	// 折扣
	Discount decimal.Decimal `gorm:"column:discount;type:decimal(20,8);not null" json:"discount"`
	// 应付总额 = 小计 + 运费 - 折扣
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(20,8);not null" json:"total_amount"`
	// 下单时采集的联系与收货信息
	ContactEmail    string `gorm:"column:contact_email;type:varchar(255)" json:"contact_email"`
	ContactName     string `gorm:"column:contact_name;type:varchar(255)" json:"contact_name"`
	ContactPhone    string `gorm:"column:contact_phone;type:varchar(50)" json:"contact_phone"`
	City            string `gorm:"column:city;type:varchar(100)" json:"city"`
	PostalCode      string `gorm:"column:postal_code;type:varchar(20)" json:"postal_code"`
	ShippingAddress string `gorm:"column:shipping_address;type:varchar(500)" json:"shipping_address"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

func (Order) TableName() string { return "orders" }

// ItemCount 商品总件数
func (o *Order) ItemCount() int {
	var n int
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// OrderItem 订单行：商品属性在下单时刻的冻结快照，
// 之后目录的修改或删除不影响历史订单。
type OrderItem struct {
	gorm.Model
	OrderID      uint            `gorm:"column:order_id;index;not null" json:"order_id"`
	ProductID    uint            `gorm:"column:product_id;not null" json:"product_id"`
	ProductName  string          `gorm:"column:product_name;type:varchar(255);not null" json:"product_name"`
	CategoryName string          `gorm:"column:category_name;type:varchar(100)" json:"category_name"`
	Color        string          `gorm:"column:color;type:varchar(30)" json:"color"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:decimal(20,8);not null" json:"unit_price"`
	Quantity     int             `gorm:"column:quantity;not null" json:"quantity"`
}

func (OrderItem) TableName() string { return "order_items" }

// LineTotal 行小计
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ContactInfo 结账时提交的联系与收货信息
type ContactInfo struct {
	Email           string
	Name            string
	Phone           string
	City            string
	PostalCode      string
	ShippingAddress string
}

// StockShortfall 单行库存缺口
type StockShortfall struct {
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

// ValidationError 下单校验失败。不自动重试，不产生任何部分状态；
// Shortfalls 汇总全部缺口行，便于一次性展示给用户修正。
type ValidationError struct {
	Message    string           `json:"message"`
	Shortfalls []StockShortfall `json:"shortfalls,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Shortfalls) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	for _, s := range e.Shortfalls {
		fmt.Fprintf(&b, "; %q requested %d available %d", s.ProductName, s.Requested, s.Available)
	}
	return b.String()
}

// NewEmptyCartError 空车下单
func NewEmptyCartError() *ValidationError {
	return &ValidationError{Message: "your cart is empty"}
}

// NewShortfallError 库存不足
func NewShortfallError(shortfalls []StockShortfall) *ValidationError {
	return &ValidationError{
		Message:    "some items are no longer available in the requested quantities",
		Shortfalls: shortfalls,
	}
}

// OrderRepository 订单仓储接口
type OrderRepository interface {
	Get(ctx context.Context, id uint) (*Order, error)
	GetForUser(ctx context.Context, userID string, id uint) (*Order, error)
	// ListForUser 按下单时间倒序
	ListForUser(ctx context.Context, userID string, limit int) ([]*Order, error)
	UpdateStatus(ctx context.Context, id uint, status OrderStatus) error
}
