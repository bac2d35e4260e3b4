package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/wyfcoding/storefront/internal/payment/domain"
)

type paymentRepository struct{ db *gorm.DB }

// NewPaymentRepository 创建支付仓储
func NewPaymentRepository(db *gorm.DB) domain.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Save(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID uint) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, txnID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", txnID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
