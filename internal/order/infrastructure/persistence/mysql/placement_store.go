package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/storefront/internal/cart/domain"
	cartmysql "github.com/wyfcoding/storefront/internal/cart/infrastructure/persistence/mysql"
	catalogdomain "github.com/wyfcoding/storefront/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/order/application"
	orderdomain "github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/db"
)

// placementStore 把下单事务落到 pkg/db.WithTx 上。
// 事务内的购物车、商品、订单操作共用同一个事务句柄。
type placementStore struct{ db *db.DB }

// NewPlacementStore 创建下单事务存储
func NewPlacementStore(d *db.DB) application.PlacementStore {
	return &placementStore{db: d}
}

func (s *placementStore) InTx(ctx context.Context, fn func(tx application.PlacementTx) error) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&placementTx{
			ctx:      ctx,
			tx:       tx,
			carts:    cartmysql.NewCartRepository(tx),
			products: catalogmysql.NewProductRepository(tx),
		})
	})
}

type placementTx struct {
	ctx      context.Context
	tx       *gorm.DB
	carts    domain.CartRepository
	products catalogdomain.ProductRepository
}

func (t *placementTx) CartWithItems(userID string) (*domain.Cart, error) {
	cart, err := t.carts.GetByOwner(t.ctx, domain.OwnerKey{UserID: userID})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return cart, err
}

func (t *placementTx) Product(id uint) (*catalogdomain.Product, error) {
	return t.products.GetByID(t.ctx, id)
}

func (t *placementTx) DecrementStock(id uint, qty int) (bool, error) {
	return t.products.TryDecrement(t.ctx, id, qty)
}

func (t *placementTx) Stock(id uint) (int, error) {
	return t.products.GetStock(t.ctx, id)
}

func (t *placementTx) CreateOrder(o *orderdomain.Order) error {
	return t.tx.WithContext(t.ctx).Create(o).Error
}

func (t *placementTx) ClearCart(cartID uint) error {
	return t.carts.ClearItems(t.ctx, cartID)
}
