package application

import (
	"context"

	"github.com/wyfcoding/storefront/internal/order/domain"
)

// QueryService 订单读路径
type QueryService struct {
	repo domain.OrderRepository
}

func NewQueryService(repo domain.OrderRepository) *QueryService {
	return &QueryService{repo: repo}
}

// GetForUser 按用户读取单个订单,查不到或不属于该用户都返回错误
func (s *QueryService) GetForUser(ctx context.Context, userID string, id uint) (*domain.Order, error) {
	return s.repo.GetForUser(ctx, userID, id)
}

// ListForUser 用户订单列表,按下单时间倒序
func (s *QueryService) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Order, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}
