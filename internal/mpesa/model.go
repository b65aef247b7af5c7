package mpesa

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether a gateway transaction can still change state.
// Completed, failed and cancelled are terminal; a redelivered callback for a
// terminal checkout request must not be applied again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Transaction tracks one externally-initiated push from initiation to the
// asynchronous result. CheckoutRequestID correlates the Daraja callback with
// the row created at initiation.
type Transaction struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	MerchantRequestID string     `json:"merchant_request_id"`
	CheckoutRequestID string     `gorm:"uniqueIndex;not null" json:"checkout_request_id"`
	AccountReference  string     `json:"account_reference"`
	Amount            int64      `gorm:"not null" json:"amount"`
	PhoneNumber       string     `gorm:"index" json:"phone_number"`
	UserID            *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Status            Status     `gorm:"not null;default:pending" json:"status"`
	ResultCode        *int       `json:"result_code,omitempty"`
	ResultDesc        string     `json:"result_desc"`
	ReceiptNumber     string     `json:"receipt_number"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

func (Transaction) TableName() string {
	return "mpesa_transactions"
}
