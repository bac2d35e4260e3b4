package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category 商品分类，Color 为分类的展示色标
type Category struct {
	gorm.Model
	Name  string `gorm:"column:name;type:varchar(100);uniqueIndex;not null" json:"name"`
	Color string `gorm:"column:color;type:varchar(30)" json:"color"`
}

func (Category) TableName() string { return "categories" }

// Product 商品实体。Stock 是实时库存，销售路径上唯一合法的扣减入口
// 是下单事务内的条件更新（ProductRepository.TryDecrement）。
type Product struct {
	gorm.Model
	Name        string          `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description string          `gorm:"column:description;type:text" json:"description"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(20,8);not null" json:"price"`
	Stock       int             `gorm:"column:stock;not null;default:0" json:"stock"`
	ImageURL    string          `gorm:"column:image_url;type:varchar(500)" json:"image_url"`
	// 可选规格，逗号分隔，如 "S, M, L" / "Red, Blue"
	Sizes      string    `gorm:"column:sizes;type:varchar(255)" json:"sizes"`
	Colors     string    `gorm:"column:colors;type:varchar(255)" json:"colors"`
	CategoryID uint      `gorm:"column:category_id;index" json:"category_id"`
	Category   *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

func (Product) TableName() string { return "products" }

// CategoryName 分类名，未加载分类时为空
func (p *Product) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return p.Category.Name
}

// LowStockProduct 低库存商品视图
type LowStockProduct struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

// ProductRepository 商品仓储接口
type ProductRepository interface {
	Save(ctx context.Context, product *Product) error
	GetByID(ctx context.Context, id uint) (*Product, error)
	List(ctx context.Context, categoryID uint, offset, limit int) ([]*Product, int, error)
	// GetStock 读取实时库存
	GetStock(ctx context.Context, id uint) (int, error)
	// TryDecrement 条件扣减：stock >= qty 时原子扣减并返回 true，否则不做任何修改返回 false
	TryDecrement(ctx context.Context, id uint, qty int) (bool, error)
	// Restock 补货
	Restock(ctx context.Context, id uint, qty int) error
	ListLowStock(ctx context.Context, threshold int) ([]LowStockProduct, error)
}
