package application

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	catalogdomain "github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/internal/cart/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"gorm.io/gorm"
)

// ProductReader 目录读侧端口，加购时取实时价格
type ProductReader interface {
	GetByID(ctx context.Context, id uint) (*catalogdomain.Product, error)
	GetStock(ctx context.Context, id uint) (int, error)
}

type CartApplicationService struct {
	repo     domain.CartRepository
	products ProductReader
	merges   prometheus.Counter
}

// NewCartApplicationService merges 计数器可为 nil
func NewCartApplicationService(repo domain.CartRepository, products ProductReader, merges prometheus.Counter) *CartApplicationService {
	return &CartApplicationService{repo: repo, products: products, merges: merges}
}

// GetOrCreate 按归属键取购物车，首次访问时懒创建
func (s *CartApplicationService) GetOrCreate(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if owner.Resolved() {
		cart = domain.NewUserCart(owner.UserID)
	} else {
		cart = domain.NewSessionCart(owner.SessionID)
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem 合并或新建行并同步落库，返回更新后的购物车与商品
func (s *CartApplicationService) AddItem(ctx context.Context, owner domain.OwnerKey, productID uint, qty int, size, color string) (*domain.Cart, *catalogdomain.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, nil, err
	}

	line := cart.AddItem(productID, qty, product.Price, size, color)
	if err := s.repo.SaveItem(ctx, line); err != nil {
		return nil, nil, err
	}

	cart, err = s.repo.GetByOwner(ctx, owner)
	return cart, product, err
}

// UpdateQuantity 设置行数量，qty <= 0 时删除该行
func (s *CartApplicationService) UpdateQuantity(ctx context.Context, owner domain.OwnerKey, productID uint, qty int) (*domain.Cart, error) {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	line := cart.FindByProduct(productID)
	if line == nil {
		return cart, nil
	}

	if qty <= 0 {
		if err := s.repo.DeleteItem(ctx, cart.ID, productID); err != nil {
			return nil, err
		}
	} else {
		line.Quantity = qty
		if err := s.repo.SaveItem(ctx, line); err != nil {
			return nil, err
		}
	}

	return s.repo.GetByOwner(ctx, owner)
}

func (s *CartApplicationService) RemoveItem(ctx context.Context, owner domain.OwnerKey, productID uint) (*domain.Cart, error) {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItem(ctx, cart.ID, productID); err != nil {
		return nil, err
	}
	return s.repo.GetByOwner(ctx, owner)
}

func (s *CartApplicationService) Clear(ctx context.Context, owner domain.OwnerKey) error {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.repo.ClearItems(ctx, cart.ID)
}

// MergeIntoUser 登录后把匿名会话购物车并入用户购物车。
// 重复调用无副作用：首次合并后会话购物车即被删除。
func (s *CartApplicationService) MergeIntoUser(ctx context.Context, sessionID, userID string) error {
	if userID == "" {
		return domain.ErrNoUserIdentity
	}
	merged, err := s.repo.Merge(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if merged {
		logger.Info(ctx, "Merged anonymous cart into user cart", "user_id", userID)
		if s.merges != nil {
			s.merges.Inc()
		}
	}
	return nil
}

// CapToAvailable 把各行数量修正到当前可售范围：
// 商品已下架或售罄的行删除，数量超过库存的行钳制到库存。
// 返回修正后的购物车以及是否发生过修改。
func (s *CartApplicationService) CapToAvailable(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, bool, error) {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if err != nil {
		return nil, false, err
	}

	changed := false
	for _, it := range cart.Items {
		stock, err := s.products.GetStock(ctx, it.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stock = 0
			err = nil
		}
		if err != nil {
			return nil, changed, err
		}

		switch {
		case stock <= 0:
			if err := s.repo.DeleteItem(ctx, cart.ID, it.ProductID); err != nil {
				return nil, changed, err
			}
			changed = true
		case stock < it.Quantity:
			line := it
			line.Quantity = stock
			if err := s.repo.SaveItem(ctx, &line); err != nil {
				return nil, changed, err
			}
			changed = true
		}
	}

	cart, err = s.repo.GetByOwner(ctx, owner)
	return cart, changed, err
}
