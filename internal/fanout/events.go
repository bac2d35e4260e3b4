// Package fanout 提供进程内事件分发中心与事件定义,
// 用于订单、购物车、库存相关的实时通知。
package fanout

import (
	"time"

	"github.com/shopspring/decimal"
)

// 事件名称。与下游消费者的约定,不要随意改动。
const (
	EventOrderCreated        = "order.created"
	EventOrderPlaced         = "order.placed"
	EventOrderCompleted      = "order.completed"
	EventLowStockAlert       = "stock.low"
	EventItemAddedToCart     = "cart.item_added"
	EventCartQuantityUpdated = "cart.quantity_updated"
)

// 订阅组。admin 与 orders 是广播组,用户/会话组按标识派生。
const (
	GroupAdmin  = "admin-broadcast"
	GroupOrders = "order-broadcast"
)

// UserGroup 指定用户的私有组
func UserGroup(userID string) string { return "user:" + userID }

// SessionGroup 匿名会话的私有组
func SessionGroup(sessionID string) string { return "session:" + sessionID }

// Event 一次分发:同一负载投递到 Groups 中的每个组。
type Event struct {
	Name    string    `json:"name"`
	Groups  []string  `json:"-"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// OrderCreatedPayload 新订单落库后的管理端通知负载
type OrderCreatedPayload struct {
	OrderID      uint            `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	ContactEmail string          `json:"contact_email"`
	ContactName  string          `json:"contact_name"`
	Date         time.Time       `json:"date"`
	Status       string          `json:"status"`
	Total        decimal.Decimal `json:"total"`
}

// OrderPlacedPayload 下单用户本人的确认负载
type OrderPlacedPayload struct {
	OrderID   uint            `json:"order_id"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// OrderStatusPayload 订单状态变化负载
type OrderStatusPayload struct {
	OrderID     uint   `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

// LowStockPayload 库存跌破阈值负载
type LowStockPayload struct {
	ProductID uint      `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemAddedPayload 加购通知负载。TotalQuantity 为购物车总件数。
type ItemAddedPayload struct {
	ProductID     uint   `json:"product_id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	TotalQuantity int    `json:"total_quantity"`
}

// CartQuantityPayload 行数量变化负载。行被删除时 Quantity 与 ItemSubtotal 为零。
type CartQuantityPayload struct {
	ProductID     uint            `json:"product_id"`
	Quantity      int             `json:"quantity"`
	ItemSubtotal  decimal.Decimal `json:"item_subtotal"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalQuantity int             `json:"total_quantity"`
}

// NewOrderCreated 广播给管理端与订单看板
func NewOrderCreated(p OrderCreatedPayload) Event {
	return Event{
		Name:    EventOrderCreated,
		Groups:  []string{GroupAdmin, GroupOrders},
		Payload: p,
		At:      time.Now(),
	}
}

// NewOrderPlaced 通知下单用户本人
func NewOrderPlaced(userID string, p OrderPlacedPayload) Event {
	return Event{
		Name:    EventOrderPlaced,
		Groups:  []string{UserGroup(userID)},
		Payload: p,
		At:      time.Now(),
	}
}

// NewOrderCompleted 支付成功后的管理端通知
func NewOrderCompleted(p OrderStatusPayload) Event {
	return Event{
		Name:    EventOrderCompleted,
		Groups:  []string{GroupAdmin, GroupOrders},
		Payload: p,
		At:      time.Now(),
	}
}

// NewLowStockAlert 库存低于阈值的管理端告警
func NewLowStockAlert(p LowStockPayload) Event {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	return Event{
		Name:    EventLowStockAlert,
		Groups:  []string{GroupAdmin},
		Payload: p,
		At:      time.Now(),
	}
}

// NewItemAdded 加购通知,投递到持有者私有组
func NewItemAdded(group string, p ItemAddedPayload) Event {
	return Event{
		Name:    EventItemAddedToCart,
		Groups:  []string{group},
		Payload: p,
		At:      time.Now(),
	}
}

// NewCartQuantityUpdated 行数量变化通知,投递到持有者私有组
func NewCartQuantityUpdated(group string, p CartQuantityPayload) Event {
	return Event{
		Name:    EventCartQuantityUpdated,
		Groups:  []string{group},
		Payload: p,
		At:      time.Now(),
	}
}
