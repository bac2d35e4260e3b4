package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/storefront/internal/payment/domain"
)

// CardProcessor 模拟银行卡网关。declineRate 为 [0,1) 的拒付概率,
// rng 可注入以便测试确定性。
type CardProcessor struct {
	declineRate float64
	rng         *rand.Rand
}

func NewCardProcessor(declineRate float64) *CardProcessor {
	return &CardProcessor{
		declineRate: declineRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewCardProcessorWithRand 注入随机源,测试用
func NewCardProcessorWithRand(declineRate float64, rng *rand.Rand) *CardProcessor {
	return &CardProcessor{declineRate: declineRate, rng: rng}
}

func (p *CardProcessor) Method() domain.Method { return domain.MethodCard }

func (p *CardProcessor) Process(_ context.Context, _ *domain.Payment, details domain.Details) (domain.Result, error) {
	if domain.MaskCardNumber(details.CardNumber) == "" {
		return domain.Result{
			Status:        domain.StatusFailed,
			FailureReason: "invalid card number",
		}, nil
	}
	if details.CardExpiry == "" {
		return domain.Result{
			Status:        domain.StatusFailed,
			FailureReason: "missing card expiry",
		}, nil
	}
	if p.rng.Float64() < p.declineRate {
		return domain.Result{
			Status:          domain.StatusFailed,
			FailureReason:   "card declined by issuer",
			GatewayResponse: "DECLINED",
		}, nil
	}
	return domain.Result{
		Status:          domain.StatusCompleted,
		TransactionID:   fmt.Sprintf("CARD-%s", uuid.NewString()),
		GatewayResponse: "APPROVED",
	}, nil
}
