// Package application 实现支付用例:发起、网关处理、回调确认。
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/storefront/internal/fanout"
	orderdomain "github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/internal/payment/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// PaymentApplicationService 支付服务。金额一律取订单存储的总额,
// 不信任客户端提交的金额。
type PaymentApplicationService struct {
	repo       domain.PaymentRepository
	orders     orderdomain.OrderRepository
	processors map[domain.Method]domain.Processor
	events     fanout.Publisher
	metrics    *metrics.Metrics
}

// NewPaymentApplicationService m 可为 nil
func NewPaymentApplicationService(
	repo domain.PaymentRepository,
	orders orderdomain.OrderRepository,
	events fanout.Publisher,
	m *metrics.Metrics,
	processors ...domain.Processor,
) *PaymentApplicationService {
	byMethod := make(map[domain.Method]domain.Processor, len(processors))
	for _, p := range processors {
		byMethod[p.Method()] = p
	}
	return &PaymentApplicationService{
		repo:       repo,
		orders:     orders,
		processors: byMethod,
		events:     events,
		metrics:    m,
	}
}

// CreatePayment 为订单登记支付。已有 Completed 支付的订单原样返回,
// 重复进入结账页不会产生第二条支付记录。
func (s *PaymentApplicationService) CreatePayment(ctx context.Context, orderID uint, method domain.Method, details domain.Details) (*domain.Payment, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d not found", orderID)
		}
		return nil, err
	}

	existing, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status == domain.StatusCompleted {
			return existing, nil
		}
		// 未完成的支付允许换方式重试,复用同一条记录。
		existing.Method = method
		existing.Amount = order.TotalAmount
		s.captureDetails(existing, details)
		if err := s.repo.Save(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	p := &domain.Payment{
		OrderID: orderID,
		Method:  method,
		Status:  domain.StatusPending,
		Amount:  order.TotalAmount,
	}
	s.captureDetails(p, details)
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentApplicationService) captureDetails(p *domain.Payment, details domain.Details) {
	p.MaskedCardNumber = domain.MaskCardNumber(details.CardNumber)
	p.CardHolder = details.CardHolder
	p.WalletProvider = details.WalletProvider
	p.WalletAccount = details.WalletAccount
}

// Process 把支付交给对应方式的处理器并落结果。
// 处理器返回 Completed 时同步把订单推进到 Completed。
func (s *PaymentApplicationService) Process(ctx context.Context, p *domain.Payment, details domain.Details) (*domain.Payment, error) {
	proc, ok := s.processors[p.Method]
	if !ok {
		return nil, fmt.Errorf("no processor registered for method %q", p.Method)
	}
	result, err := proc.Process(ctx, p, details)
	if err != nil {
		return nil, err
	}
	s.apply(p, result)
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	logger.Info(ctx, "payment processed",
		"order_id", p.OrderID, "method", p.Method, "status", p.Status, "transaction_id", p.TransactionID)

	if p.Status == domain.StatusCompleted {
		if err := s.completeOrder(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *PaymentApplicationService) apply(p *domain.Payment, r domain.Result) {
	p.Status = r.Status
	if r.TransactionID != "" {
		p.TransactionID = r.TransactionID
	}
	p.FailureReason = r.FailureReason
	p.GatewayResponse = r.GatewayResponse
	if r.Status == domain.StatusCompleted {
		now := time.Now()
		p.PaymentDate = &now
	}
}

// HandleGatewayCallback 网关异步回调。幂等:终态支付收到同一交易号的
// 重复回调直接忽略;交易号不一致或订单未知则拒绝且不改任何状态。
func (s *PaymentApplicationService) HandleGatewayCallback(ctx context.Context, txnID string, orderID uint, succeeded bool, reason string) (*domain.Payment, error) {
	if txnID == "" {
		return nil, s.reject(ctx, "missing transaction id", orderID)
	}
	p, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.reject(ctx, fmt.Sprintf("no payment for order %d", orderID), orderID)
		}
		return nil, err
	}
	if p.Status.Terminal() {
		if p.TransactionID == txnID {
			return p, nil
		}
		return nil, s.reject(ctx, fmt.Sprintf("payment for order %d already settled with a different transaction", orderID), orderID)
	}

	if succeeded {
		now := time.Now()
		p.Status = domain.StatusCompleted
		p.TransactionID = txnID
		p.PaymentDate = &now
		p.GatewayResponse = "confirmed by gateway callback"
	} else {
		p.Status = domain.StatusFailed
		p.TransactionID = txnID
		if reason == "" {
			reason = "rejected by gateway"
		}
		p.FailureReason = reason
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	logger.Info(ctx, "gateway callback applied",
		"order_id", orderID, "transaction_id", txnID, "status", p.Status)

	if p.Status == domain.StatusCompleted {
		if err := s.completeOrder(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *PaymentApplicationService) completeOrder(ctx context.Context, p *domain.Payment) error {
	if err := s.orders.UpdateStatus(ctx, p.OrderID, orderdomain.OrderStatusCompleted); err != nil {
		return err
	}
	order, err := s.orders.Get(ctx, p.OrderID)
	if err != nil {
		return err
	}
	s.events.Publish(ctx, fanout.NewOrderCompleted(fanout.OrderStatusPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	}))
	return nil
}

func (s *PaymentApplicationService) reject(ctx context.Context, reason string, orderID uint) error {
	logger.Warn(ctx, "payment callback rejected", "order_id", orderID, "reason", reason)
	if s.metrics != nil {
		s.metrics.PaymentCallbackRejectedTotal.Inc()
	}
	return &domain.CallbackError{Reason: reason}
}

// GetByOrderID 查询订单的支付记录
func (s *PaymentApplicationService) GetByOrderID(ctx context.Context, orderID uint) (*domain.Payment, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// VerifyPayment 校验交易号对应的支付是否成功
func (s *PaymentApplicationService) VerifyPayment(ctx context.Context, txnID string) bool {
	p, err := s.repo.GetByTransactionID(ctx, txnID)
	if err != nil {
		return false
	}
	return p.Status == domain.StatusCompleted
}
