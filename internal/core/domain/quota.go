package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Bounds applied by ClampLimits.
const (
	MinDailyLimit          = 1
	MaxDailyLimit          = 10000
	MinActionsPerMinute    = 1
	MaxActionsPerMinute    = 100
	MinConcurrentWorkflows = 1
	MaxConcurrentWorkflows = 50
	MinDailyTokenLimit     = 1000
	MaxDailyTokenLimit     = 100000000
)

var (
	minAmountCap = decimal.NewFromInt(1)
	maxAmountCap = decimal.NewFromInt(1000000000)
)

// QuotaLimits is the set of numeric ceilings shared by user quotas and plan tiers.
type QuotaLimits struct {
	DailyInvoiceLimit      int             `json:"dailyInvoiceLimit" yaml:"daily_invoice_limit"`
	DailyBillLimit         int             `json:"dailyBillLimit" yaml:"daily_bill_limit"`
	DailyJournalEntryLimit int             `json:"dailyJournalEntryLimit" yaml:"daily_journal_entry_limit"`
	DailyQuotationLimit    int             `json:"dailyQuotationLimit" yaml:"daily_quotation_limit"`
	MaxInvoiceAmount       decimal.Decimal `json:"maxInvoiceAmount" yaml:"max_invoice_amount"`
	MaxBillAmount          decimal.Decimal `json:"maxBillAmount" yaml:"max_bill_amount"`
	MaxJournalEntryAmount  decimal.Decimal `json:"maxJournalEntryAmount" yaml:"max_journal_entry_amount"`
	MaxDailyTotalAmount    decimal.Decimal `json:"maxDailyTotalAmount" yaml:"max_daily_total_amount"`
	MaxActionsPerMinute    int             `json:"maxActionsPerMinute" yaml:"max_actions_per_minute"`
	MaxConcurrentWorkflows int             `json:"maxConcurrentWorkflows" yaml:"max_concurrent_workflows"`
	DailyTokenLimit        int64           `json:"dailyTokenLimit" yaml:"daily_token_limit"`
}

// DefaultQuotaLimits are the per-user ceilings created on first access.
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		DailyInvoiceLimit:      100,
		DailyBillLimit:         100,
		DailyJournalEntryLimit: 200,
		DailyQuotationLimit:    100,
		MaxInvoiceAmount:       decimal.NewFromInt(50000),
		MaxBillAmount:          decimal.NewFromInt(50000),
		MaxJournalEntryAmount:  decimal.NewFromInt(100000),
		MaxDailyTotalAmount:    decimal.NewFromInt(250000),
		MaxActionsPerMinute:    30,
		MaxConcurrentWorkflows: 5,
		DailyTokenLimit:        1000000,
	}
}

// DailyLimitFor returns the daily creation ceiling tracked by counter.
func (l QuotaLimits) DailyLimitFor(counter UsageCounter) (int, bool) {
	switch counter {
	case CounterInvoices:
		return l.DailyInvoiceLimit, true
	case CounterBills:
		return l.DailyBillLimit, true
	case CounterJournalEntries:
		return l.DailyJournalEntryLimit, true
	case CounterQuotations:
		return l.DailyQuotationLimit, true
	}
	return 0, false
}

// AmountCapFor returns the per-transaction cap for the category, if it has one.
func (l QuotaLimits) AmountCapFor(category ActionCategory) (decimal.Decimal, bool) {
	switch category {
	case CategoryInvoice:
		return l.MaxInvoiceAmount, true
	case CategoryBill:
		return l.MaxBillAmount, true
	case CategoryJournalEntry:
		return l.MaxJournalEntryAmount, true
	}
	return decimal.Zero, false
}

// MinLimits returns the field-wise minimum of a and b.
func MinLimits(a, b QuotaLimits) QuotaLimits {
	return QuotaLimits{
		DailyInvoiceLimit:      min(a.DailyInvoiceLimit, b.DailyInvoiceLimit),
		DailyBillLimit:         min(a.DailyBillLimit, b.DailyBillLimit),
		DailyJournalEntryLimit: min(a.DailyJournalEntryLimit, b.DailyJournalEntryLimit),
		DailyQuotationLimit:    min(a.DailyQuotationLimit, b.DailyQuotationLimit),
		MaxInvoiceAmount:       decimal.Min(a.MaxInvoiceAmount, b.MaxInvoiceAmount),
		MaxBillAmount:          decimal.Min(a.MaxBillAmount, b.MaxBillAmount),
		MaxJournalEntryAmount:  decimal.Min(a.MaxJournalEntryAmount, b.MaxJournalEntryAmount),
		MaxDailyTotalAmount:    decimal.Min(a.MaxDailyTotalAmount, b.MaxDailyTotalAmount),
		MaxActionsPerMinute:    min(a.MaxActionsPerMinute, b.MaxActionsPerMinute),
		MaxConcurrentWorkflows: min(a.MaxConcurrentWorkflows, b.MaxConcurrentWorkflows),
		DailyTokenLimit:        min(a.DailyTokenLimit, b.DailyTokenLimit),
	}
}

// ClampLimits bounds every field to its safe range. Out-of-range values are clamped, never rejected.
func ClampLimits(l QuotaLimits) QuotaLimits {
	return QuotaLimits{
		DailyInvoiceLimit:      clampInt(l.DailyInvoiceLimit, MinDailyLimit, MaxDailyLimit),
		DailyBillLimit:         clampInt(l.DailyBillLimit, MinDailyLimit, MaxDailyLimit),
		DailyJournalEntryLimit: clampInt(l.DailyJournalEntryLimit, MinDailyLimit, MaxDailyLimit),
		DailyQuotationLimit:    clampInt(l.DailyQuotationLimit, MinDailyLimit, MaxDailyLimit),
		MaxInvoiceAmount:       clampDecimal(l.MaxInvoiceAmount, minAmountCap, maxAmountCap),
		MaxBillAmount:          clampDecimal(l.MaxBillAmount, minAmountCap, maxAmountCap),
		MaxJournalEntryAmount:  clampDecimal(l.MaxJournalEntryAmount, minAmountCap, maxAmountCap),
		MaxDailyTotalAmount:    clampDecimal(l.MaxDailyTotalAmount, minAmountCap, maxAmountCap),
		MaxActionsPerMinute:    clampInt(l.MaxActionsPerMinute, MinActionsPerMinute, MaxActionsPerMinute),
		MaxConcurrentWorkflows: clampInt(l.MaxConcurrentWorkflows, MinConcurrentWorkflows, MaxConcurrentWorkflows),
		DailyTokenLimit:        clampInt64(l.DailyTokenLimit, MinDailyTokenLimit, MaxDailyTokenLimit),
	}
}

// AgentQuotas are a user's own ceilings plus the emergency stop switch.
type AgentQuotas struct {
	UserID string `json:"userID"`
	QuotaLimits
	EmergencyStopEnabled bool       `json:"emergencyStopEnabled"`
	EmergencyStopReason  *string    `json:"emergencyStopReason,omitempty"`
	EmergencyStoppedBy   *string    `json:"emergencyStoppedBy,omitempty"`
	EmergencyStoppedAt   *time.Time `json:"emergencyStoppedAt,omitempty"`
	AuditFields
}

// DefaultAgentQuotas returns the quota row a user gets on first access.
func DefaultAgentQuotas(userID string, now time.Time) AgentQuotas {
	return AgentQuotas{
		UserID:      userID,
		QuotaLimits: DefaultQuotaLimits(),
		AuditFields: AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
}

// QuotaCheckResult is the governor's answer for a single action. Denials are values, not errors.
type QuotaCheckResult struct {
	Allowed   bool             `json:"allowed"`
	Reason    string           `json:"reason,omitempty"`
	Limit     *decimal.Decimal `json:"limit,omitempty"`
	Current   *decimal.Decimal `json:"current,omitempty"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
}

// MarshalJSON writes limit, current and remaining as JSON numbers rather than decimal strings.
func (r QuotaCheckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Allowed   bool         `json:"allowed"`
		Reason    string       `json:"reason,omitempty"`
		Limit     *json.Number `json:"limit,omitempty"`
		Current   *json.Number `json:"current,omitempty"`
		Remaining *json.Number `json:"remaining,omitempty"`
	}{
		Allowed:   r.Allowed,
		Reason:    r.Reason,
		Limit:     jsonNumber(r.Limit),
		Current:   jsonNumber(r.Current),
		Remaining: jsonNumber(r.Remaining),
	})
}

func jsonNumber(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := json.Number(d.String())
	return &n
}

// Allow is the result for an action that passed every check.
func Allow() QuotaCheckResult {
	return QuotaCheckResult{Allowed: true}
}

// Deny builds a denial with limit, current and remaining filled in. Remaining never goes below zero.
func Deny(reason string, limit, current decimal.Decimal) QuotaCheckResult {
	remaining := limit.Sub(current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return QuotaCheckResult{
		Allowed:   false,
		Reason:    reason,
		Limit:     &limit,
		Current:   &current,
		Remaining: &remaining,
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampInt64(v, lo, hi int64) int64 {
	return max(lo, min(v, hi))
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
