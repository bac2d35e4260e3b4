// Package domain 包含支付的领域模型与网关抽象
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Method 支付方式,封闭集合,每种方式对应一个 Processor 实现
type Method string

const (
	MethodCOD          Method = "COD"
	MethodCard         Method = "Card"
	MethodWallet       Method = "Wallet"
	MethodBankTransfer Method = "BankTransfer"
)

// ParseMethod 解析支付方式,大小写不敏感
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cod", "cash", "cashondelivery":
		return MethodCOD, nil
	case "card", "creditcard", "debitcard":
		return MethodCard, nil
	case "wallet":
		return MethodWallet, nil
	case "banktransfer", "bank_transfer", "transfer":
		return MethodBankTransfer, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// Status 支付状态
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusRefunded  Status = "Refunded"
)

// Terminal 终态不再迁移(回调幂等的判定依据)
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Payment 支付记录。每个订单至多一条;卡号等敏感字段只存脱敏值。
type Payment struct {
	gorm.Model
	OrderID uint            `gorm:"column:order_id;uniqueIndex;not null" json:"order_id"`
	Method  Method          `gorm:"column:method;type:varchar(20);not null" json:"method"`
	Status  Status          `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Amount  decimal.Decimal `gorm:"column:amount;type:decimal(20,8);not null" json:"amount"`
	// 网关交易号
	TransactionID    string     `gorm:"column:transaction_id;type:varchar(64);index" json:"transaction_id"`
	MaskedCardNumber string     `gorm:"column:masked_card_number;type:varchar(25)" json:"masked_card_number,omitempty"`
	CardHolder       string     `gorm:"column:card_holder;type:varchar(128)" json:"card_holder,omitempty"`
	WalletProvider   string     `gorm:"column:wallet_provider;type:varchar(50)" json:"wallet_provider,omitempty"`
	WalletAccount    string     `gorm:"column:wallet_account;type:varchar(128)" json:"wallet_account,omitempty"`
	PaymentDate      *time.Time `gorm:"column:payment_date" json:"payment_date,omitempty"`
	FailureReason    string     `gorm:"column:failure_reason;type:varchar(255)" json:"failure_reason,omitempty"`
	GatewayResponse  string     `gorm:"column:gateway_response;type:varchar(500)" json:"-"`
}

func (Payment) TableName() string { return "payments" }

// Details 发起支付时提交的支付要素,不落库,只取脱敏后的衍生值
type Details struct {
	CardNumber     string `json:"card_number,omitempty"`
	CardHolder     string `json:"card_holder,omitempty"`
	CardExpiry     string `json:"card_expiry,omitempty"`
	WalletProvider string `json:"wallet_provider,omitempty"`
	WalletAccount  string `json:"wallet_account,omitempty"`
}

// MaskCardNumber 只保留末四位
func MaskCardNumber(number string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) < 4 {
		return ""
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

// Result 网关处理结果
type Result struct {
	Status          Status
	TransactionID   string
	FailureReason   string
	GatewayResponse string
}

// Processor 按支付方式划分的网关处理器
type Processor interface {
	Method() Method
	Process(ctx context.Context, payment *Payment, details Details) (Result, error)
}

// CallbackError 网关回调被拒绝,不改变任何支付状态
type CallbackError struct {
	Reason string
}

func (e *CallbackError) Error() string {
	return "payment callback rejected: " + e.Reason
}

// PaymentRepository 支付仓储接口
type PaymentRepository interface {
	Save(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID uint) (*Payment, error)
	GetByTransactionID(ctx context.Context, txnID string) (*Payment, error)
}
