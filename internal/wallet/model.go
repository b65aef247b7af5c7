package wallet

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionPayment TransactionType = "payment"
	TransactionTopUp   TransactionType = "top_up"
	TransactionCredit  TransactionType = "credit"
	TransactionDebit   TransactionType = "debit"
	TransactionRefund  TransactionType = "refund"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

type PaymentMethod string

const (
	MethodMpesa  PaymentMethod = "mpesa"
	MethodWallet PaymentMethod = "wallet"
	MethodQR     PaymentMethod = "qr"
	MethodManual PaymentMethod = "manual"
)

// Transaction is an append-only ledger row. Reference doubles as the
// idempotency key: an external notification that was already recorded
// under the same reference is rejected, never re-applied.
type Transaction struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Reference     string            `gorm:"uniqueIndex;not null" json:"reference"`
	Type          TransactionType   `gorm:"not null" json:"type"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Status        TransactionStatus `gorm:"not null" json:"status"`
	PaymentMethod PaymentMethod     `gorm:"not null" json:"payment_method"`
	Description   string            `json:"description"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}
