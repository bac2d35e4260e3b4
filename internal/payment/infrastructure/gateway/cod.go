// Package gateway 提供各支付方式的处理器实现。
// Card 与 Wallet 模拟外部网关行为,BankTransfer 等待异步回调确认。
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/payment/domain"
)

// CODProcessor 货到付款,下单即确认
type CODProcessor struct{}

func NewCODProcessor() *CODProcessor { return &CODProcessor{} }

func (p *CODProcessor) Method() domain.Method { return domain.MethodCOD }

func (p *CODProcessor) Process(_ context.Context, _ *domain.Payment, _ domain.Details) (domain.Result, error) {
	return domain.Result{
		Status:          domain.StatusCompleted,
		TransactionID:   fmt.Sprintf("COD-%d", time.Now().UnixNano()),
		GatewayResponse: "cash on delivery confirmed",
	}, nil
}
