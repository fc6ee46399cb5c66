package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditFields holds the standard row ownership columns.
type AuditFields struct {
	CreatedAt     time.Time `db:"created_at"`
	CreatedBy     string    `db:"created_by"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
	LastUpdatedBy string    `db:"last_updated_by"`
}

// FinancialImpact is stored as four nullable columns on the owning row.
type FinancialImpact struct {
	Amount           decimal.NullDecimal `db:"impact_amount"`
	Currency         *string             `db:"impact_currency"`
	Direction        *string             `db:"impact_direction"`
	AccountsAffected []string            `db:"impact_accounts"`
}
