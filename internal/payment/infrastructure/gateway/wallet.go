package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/storefront/internal/payment/domain"
)

// WalletProcessor 模拟电子钱包网关
type WalletProcessor struct {
	declineRate float64
	rng         *rand.Rand
}

func NewWalletProcessor(declineRate float64) *WalletProcessor {
	return &WalletProcessor{
		declineRate: declineRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewWalletProcessorWithRand 注入随机源,测试用
func NewWalletProcessorWithRand(declineRate float64, rng *rand.Rand) *WalletProcessor {
	return &WalletProcessor{declineRate: declineRate, rng: rng}
}

func (p *WalletProcessor) Method() domain.Method { return domain.MethodWallet }

func (p *WalletProcessor) Process(_ context.Context, _ *domain.Payment, details domain.Details) (domain.Result, error) {
	if details.WalletProvider == "" || details.WalletAccount == "" {
		return domain.Result{
			Status:        domain.StatusFailed,
			FailureReason: "missing wallet provider or account",
		}, nil
	}
	if p.rng.Float64() < p.declineRate {
		return domain.Result{
			Status:          domain.StatusFailed,
			FailureReason:   "insufficient wallet balance",
			GatewayResponse: "DECLINED",
		}, nil
	}
	return domain.Result{
		Status:          domain.StatusCompleted,
		TransactionID:   fmt.Sprintf("WAL-%s", uuid.NewString()),
		GatewayResponse: "APPROVED",
	}, nil
}
