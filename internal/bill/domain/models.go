package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusUnpaid = "unpaid"
	StatusPaid   = "paid"
)

// DueInDays is how far past the issue date a generated bill falls due when
// the caller does not provide an explicit due date.
const DueInDays = 15

type Bill struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Units      float64      `gorm:"not null" json:"units"`
	Amount     float64      `gorm:"not null" json:"amount"`
	IssueDate  time.Time    `gorm:"not null;index" json:"issue_date"`
	DueDate    time.Time    `gorm:"not null" json:"due_date"`
	Status     string       `gorm:"not null;default:unpaid" json:"status"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }

// Period returns the calendar (year, month) the bill's issue date falls in,
// which is the consumption ledger key it contributes to.
func (b Bill) Period() (int, int) {
	issued := b.IssueDate.UTC()
	return issued.Year(), int(issued.Month())
}

func ValidStatus(status string) bool {
	switch status {
	case StatusUnpaid, StatusPaid:
		return true
	default:
		return false
	}
}

// View is a bill joined with its owner's display fields for API responses.
type View struct {
	Bill
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}
