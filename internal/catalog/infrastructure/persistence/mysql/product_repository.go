package mysql

import (
	"context"

	"github.com/wyfcoding/storefront/internal/catalog/domain"
	"gorm.io/gorm"
)

type productRepository struct{ db *gorm.DB }

// NewProductRepository 创建商品仓储。db 可以是连接池句柄，也可以是事务句柄，
// 下单事务内通过事务句柄构造以保证扣减与订单写入同属一个事务。
func NewProductRepository(db *gorm.DB) domain.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Save(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).Preload("Category").First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) List(ctx context.Context, categoryID uint, offset, limit int) ([]*domain.Product, int, error) {
	var products []*domain.Product
	var total int64
	q := r.db.WithContext(ctx).Model(&domain.Product{})
	if categoryID != 0 {
		q = q.Where("category_id = ?", categoryID)
	}
	q.Count(&total)
	err := q.Preload("Category").Offset(offset).Limit(limit).Find(&products).Error
	return products, int(total), err
}

func (r *productRepository) GetStock(ctx context.Context, id uint) (int, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).Select("stock").First(&p, id).Error; err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// TryDecrement 条件扣减。受影响行数为 0 表示库存不足（或并发请求抢先），
// 由调用方决定回滚。数据库层的条件更新保证 stock 永不为负。
func (r *productRepository) TryDecrement(ctx context.Context, id uint, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *productRepository) Restock(ctx context.Context, id uint, qty int) error {
	return r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
}

func (r *productRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.LowStockProduct, error) {
	var out []domain.LowStockProduct
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Select("id AS product_id, name, stock").
		Where("stock < ?", threshold).
		Scan(&out).Error
	return out, err
}
