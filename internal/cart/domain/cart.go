package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNoUserIdentity 结账时无法解析登录用户身份，在事务阶段开始前拒绝
var ErrNoUserIdentity = errors.New("cannot resolve user identity for checkout")

// OwnerKey 购物车归属键：登录用户取 UserID，匿名访客取 SessionID。
// 二者由 HTTP 层提供，核心不签发。
type OwnerKey struct {
	UserID    string
	SessionID string
}

// Resolved 是否已解析出登录用户
func (k OwnerKey) Resolved() bool { return k.UserID != "" }

// Cart 购物车聚合根。user_id 与 session_id 恰有一个非空；
// 匿名购物车在登录合并后只保留 user_id。
type Cart struct {
	gorm.Model
	UserID    *string    `gorm:"column:user_id;type:varchar(64);uniqueIndex"`
	SessionID *string    `gorm:"column:session_id;type:varchar(64);uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID"`
}

func (Cart) TableName() string { return "carts" }

// CartItem 购物车行。同一购物车内 (product, size, color) 唯一，
// 重复加购累加数量而不是新增行。size/color 用空串而非 NULL，
// 让唯一索引在 MySQL 下真正生效。
type CartItem struct {
	gorm.Model
	CartID    uint `gorm:"column:cart_id;not null;uniqueIndex:uk_cart_line,priority:1"`
	ProductID uint `gorm:"column:product_id;not null;uniqueIndex:uk_cart_line,priority:2"`
	Quantity  int  `gorm:"column:quantity;not null"`
	// 加购时的单价快照，仅用于购物车展示；下单金额以成交时实时价格为准
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:decimal(20,8)"`
	SelectedSize  string          `gorm:"column:selected_size;type:varchar(50);not null;default:'';uniqueIndex:uk_cart_line,priority:3"`
	SelectedColor string          `gorm:"column:selected_color;type:varchar(50);not null;default:'';uniqueIndex:uk_cart_line,priority:4"`
}

func (CartItem) TableName() string { return "cart_items" }

// LineTotal 行小计
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewUserCart 创建用户购物车
func NewUserCart(userID string) *Cart {
	return &Cart{UserID: &userID}
}

// NewSessionCart 创建匿名会话购物车
func NewSessionCart(sessionID string) *Cart {
	return &Cart{SessionID: &sessionID}
}

// FindLine 按 (product, size, color) 变体键查找行
func (c *Cart) FindLine(productID uint, size, color string) *CartItem {
	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductID == productID && it.SelectedSize == size && it.SelectedColor == color {
			return it
		}
	}
	return nil
}

// FindByProduct 按商品查找首行（数量更新/删除按商品号定位）
func (c *Cart) FindByProduct(productID uint) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// AddItem 合并或新建行。数量向下钳制为 1，价格快照取加购时实时价。
// 返回受影响的行。
func (c *Cart) AddItem(productID uint, qty int, unitPrice decimal.Decimal, size, color string) *CartItem {
	if qty < 1 {
		qty = 1
	}
	if line := c.FindLine(productID, size, color); line != nil {
		line.Quantity += qty
		return line
	}
	c.Items = append(c.Items, CartItem{
		CartID:        c.ID,
		ProductID:     productID,
		Quantity:      qty,
		UnitPrice:     unitPrice,
		SelectedSize:  size,
		SelectedColor: color,
	})
	return &c.Items[len(c.Items)-1]
}

// Count 商品总件数
func (c *Cart) Count() int {
	var n int
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal 按加购价快照计算的小计（仅展示用）
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// IsEmpty 是否为空车
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// CartRepository 购物车仓储接口。所有修改同步落库，
// 调用方写后读必须看到一致的行列表。
type CartRepository interface {
	// GetByOwner 按归属键读取，未找到返回 gorm.ErrRecordNotFound
	GetByOwner(ctx context.Context, owner OwnerKey) (*Cart, error)
	Create(ctx context.Context, cart *Cart) error
	// SaveItem 插入或更新单行
	SaveItem(ctx context.Context, item *CartItem) error
	DeleteItem(ctx context.Context, cartID, productID uint) error
	// ClearItems 清空行，保留购物车本身
	ClearItems(ctx context.Context, cartID uint) error
	// Merge 把匿名会话购物车并入用户购物车并删除前者，整体在一个事务内完成。
	// 无用户购物车时直接改挂归属（不复制行）；有则按 (product, size, color)
	// 变体键逐行合并，数量相加。会话购物车不存在时无事发生，返回 false——
	// 这使得同一 (session, user) 的第二次合并天然幂等。
	Merge(ctx context.Context, sessionID, userID string) (bool, error)
}
