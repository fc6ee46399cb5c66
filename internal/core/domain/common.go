package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditFields holds standard audit information for domain entities.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"` // UserID Reference
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"` // UserID Reference
}

// ImpactDirection indicates which side of the ledger an action moves money on.
type ImpactDirection string

const (
	DirectionDebit  ImpactDirection = "debit"
	DirectionCredit ImpactDirection = "credit"
	DirectionNone   ImpactDirection = "none"
)

// FinancialImpact describes the money an action moves or is estimated to move.
type FinancialImpact struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency,omitempty"`
	Direction        ImpactDirection `json:"direction,omitempty"`
	AccountsAffected []string        `json:"accountsAffected,omitempty"`
}

// UTCDay truncates t to the start of its UTC calendar day.
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
