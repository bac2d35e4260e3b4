package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/storefront/internal/cart/domain"
	"gorm.io/gorm"
)

type cartRepository struct{ db *gorm.DB }

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) domain.CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) GetByOwner(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	var cart domain.Cart
	q := r.db.WithContext(ctx).Preload("Items")
	if owner.Resolved() {
		q = q.Where("user_id = ?", owner.UserID)
	} else {
		q = q.Where("session_id = ?", owner.SessionID)
	}
	if err := q.First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *cartRepository) SaveItem(ctx context.Context, item *domain.CartItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, productID uint) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&domain.CartItem{}).Error
}

func (r *cartRepository) ClearItems(ctx context.Context, cartID uint) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&domain.CartItem{}).Error
}

func (r *cartRepository) Merge(ctx context.Context, sessionID, userID string) (bool, error) {
	merged := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessionCart domain.Cart
		err := tx.Preload("Items").Where("session_id = ?", sessionID).First(&sessionCart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 会话购物车不存在（从未创建或已合并），无事可做
			return nil
		}
		if err != nil {
			return err
		}

		var userCart domain.Cart
		err = tx.Preload("Items").Where("user_id = ?", userID).First(&userCart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 无用户购物车：改挂归属即可，不复制行
			if err := tx.Model(&domain.Cart{}).Where("id = ?", sessionCart.ID).
				Updates(map[string]interface{}{"user_id": userID, "session_id": nil}).Error; err != nil {
				return err
			}
			merged = true
			return nil
		}
		if err != nil {
			return err
		}

		for _, it := range sessionCart.Items {
			if line := userCart.FindLine(it.ProductID, it.SelectedSize, it.SelectedColor); line != nil {
				if err := tx.Model(&domain.CartItem{}).Where("id = ?", line.ID).
					UpdateColumn("quantity", gorm.Expr("quantity + ?", it.Quantity)).Error; err != nil {
					return err
				}
				continue
			}
			newLine := domain.CartItem{
				CartID:        userCart.ID,
				ProductID:     it.ProductID,
				Quantity:      it.Quantity,
				UnitPrice:     it.UnitPrice,
				SelectedSize:  it.SelectedSize,
				SelectedColor: it.SelectedColor,
			}
			if err := tx.Create(&newLine).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("cart_id = ?", sessionCart.ID).Delete(&domain.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(&sessionCart).Error; err != nil {
			return err
		}
		merged = true
		return nil
	})
	return merged, err
}
