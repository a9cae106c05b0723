package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	MethodRazorpay = "razorpay"

	StatusCompleted = "completed"
)

// BillRefAll marks a payment that settled every unpaid bill the customer
// had at verification time, instead of a single bill.
const BillRefAll = "all"

// Payment is a settled checkout. GatewayPaymentID carries a unique index:
// it is the idempotency key that makes replayed verifications harmless.
type Payment struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID       snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	CustomerEmail    string            `gorm:"not null" json:"customer_email"`
	BillRef          string            `gorm:"not null" json:"bill_ref"`
	OrderID          string            `gorm:"not null" json:"order_id"`
	GatewayPaymentID string            `gorm:"not null;uniqueIndex" json:"gateway_payment_id"`
	Amount           float64           `gorm:"not null" json:"amount"`
	Method           string            `gorm:"not null;default:razorpay" json:"method"`
	Status           string            `gorm:"not null;default:completed" json:"status"`
	Metadata         datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }
