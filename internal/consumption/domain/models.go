package domain

import (
	"github.com/bwmarrin/snowflake"
)

// Aggregate is the running total of billed units for one customer in one
// calendar month. A period with zero net units has no row at all.
type Aggregate struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_consumption_period,priority:1" json:"customer_id"`
	Year       int          `gorm:"not null;uniqueIndex:ux_consumption_period,priority:2" json:"year"`
	Month      int          `gorm:"not null;uniqueIndex:ux_consumption_period,priority:3" json:"month"`
	Units      float64      `gorm:"not null" json:"units"`
}

func (Aggregate) TableName() string { return "consumption_aggregates" }

// Finding is one period-level comparison between the stored aggregate and
// the sum of live bills.
type Finding struct {
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	AggregateUnits float64 `json:"aggregate_units"`
	BilledUnits    float64 `json:"billed_units"`
}

func (f Finding) Consistent() bool {
	return equalUnits(f.AggregateUnits, f.BilledUnits)
}

// AuditReport is the result of reconciling one customer's aggregates
// against their live bills.
type AuditReport struct {
	CustomerID snowflake.ID `json:"customer_id"`
	Consistent bool         `json:"consistent"`
	Findings   []Finding    `json:"findings"`
}

func equalUnits(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-6
}
