package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wyfcoding/storefront/internal/payment/domain"
)

// BankTransferProcessor 银行转账:先登记交易号,
// 保持 Pending 等待网关回调确认到账。
type BankTransferProcessor struct{}

func NewBankTransferProcessor() *BankTransferProcessor { return &BankTransferProcessor{} }

func (p *BankTransferProcessor) Method() domain.Method { return domain.MethodBankTransfer }

func (p *BankTransferProcessor) Process(_ context.Context, _ *domain.Payment, _ domain.Details) (domain.Result, error) {
	return domain.Result{
		Status:          domain.StatusPending,
		TransactionID:   fmt.Sprintf("BT-%s", uuid.NewString()),
		GatewayResponse: "awaiting transfer confirmation",
	}, nil
}
