package dto

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/shopspring/decimal"
)

// UpdateQuotasRequest defines the quota fields a user may change. Out-of-range values are clamped.
type UpdateQuotasRequest struct {
	DailyInvoiceLimit      *int             `json:"dailyInvoiceLimit"`
	DailyBillLimit         *int             `json:"dailyBillLimit"`
	DailyJournalEntryLimit *int             `json:"dailyJournalEntryLimit"`
	DailyQuotationLimit    *int             `json:"dailyQuotationLimit"`
	MaxInvoiceAmount       *decimal.Decimal `json:"maxInvoiceAmount"`
	MaxBillAmount          *decimal.Decimal `json:"maxBillAmount"`
	MaxJournalEntryAmount  *decimal.Decimal `json:"maxJournalEntryAmount"`
	MaxDailyTotalAmount    *decimal.Decimal `json:"maxDailyTotalAmount"`
	MaxActionsPerMinute    *int             `json:"maxActionsPerMinute"`
	MaxConcurrentWorkflows *int             `json:"maxConcurrentWorkflows"`
	DailyTokenLimit        *int64           `json:"dailyTokenLimit"`
}

// Apply overlays the provided fields on limits.
func (r UpdateQuotasRequest) Apply(limits domain.QuotaLimits) domain.QuotaLimits {
	if r.DailyInvoiceLimit != nil {
		limits.DailyInvoiceLimit = *r.DailyInvoiceLimit
	}
	if r.DailyBillLimit != nil {
		limits.DailyBillLimit = *r.DailyBillLimit
	}
	if r.DailyJournalEntryLimit != nil {
		limits.DailyJournalEntryLimit = *r.DailyJournalEntryLimit
	}
	if r.DailyQuotationLimit != nil {
		limits.DailyQuotationLimit = *r.DailyQuotationLimit
	}
	if r.MaxInvoiceAmount != nil {
		limits.MaxInvoiceAmount = *r.MaxInvoiceAmount
	}
	if r.MaxBillAmount != nil {
		limits.MaxBillAmount = *r.MaxBillAmount
	}
	if r.MaxJournalEntryAmount != nil {
		limits.MaxJournalEntryAmount = *r.MaxJournalEntryAmount
	}
	if r.MaxDailyTotalAmount != nil {
		limits.MaxDailyTotalAmount = *r.MaxDailyTotalAmount
	}
	if r.MaxActionsPerMinute != nil {
		limits.MaxActionsPerMinute = *r.MaxActionsPerMinute
	}
	if r.MaxConcurrentWorkflows != nil {
		limits.MaxConcurrentWorkflows = *r.MaxConcurrentWorkflows
	}
	if r.DailyTokenLimit != nil {
		limits.DailyTokenLimit = *r.DailyTokenLimit
	}
	return limits
}

// CheckQuotaRequest asks the governor whether an action may run now.
type CheckQuotaRequest struct {
	ActionType domain.ActionType `json:"actionType" binding:"required,actiontype"`
	Amount     *decimal.Decimal  `json:"amount"`
}

// EmergencyStopRequest carries the operator's reason.
type EmergencyStopRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ResetUsageRequest selects the day to reset. Empty means today (UTC).
type ResetUsageRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// UsageParams selects a single day of usage.
type UsageParams struct {
	Date string `form:"date" binding:"omitempty,datetime=2006-01-02"`
}

// UsageHistoryParams selects how many trailing days to return.
type UsageHistoryParams struct {
	Days int `form:"days,default=7" binding:"min=1,max=90"`
}

// UsageHistoryResponse wraps daily usage rows, newest first.
type UsageHistoryResponse struct {
	Usage []domain.AgentUsage `json:"usage"`
}

// UsageSummaryResponse compares today's usage with the effective limits.
type UsageSummaryResponse struct {
	Effective            domain.QuotaLimits `json:"effective"`
	EmergencyStopEnabled bool               `json:"emergencyStopEnabled"`
	Today                domain.AgentUsage  `json:"today"`
	Remaining            RemainingQuota     `json:"remaining"`
}

// RemainingQuota is what is left of each daily ceiling. Values never go below zero.
type RemainingQuota struct {
	Invoices       int             `json:"invoices"`
	Bills          int             `json:"bills"`
	JournalEntries int             `json:"journalEntries"`
	Quotations     int             `json:"quotations"`
	Amount         decimal.Decimal `json:"amount"`
	Tokens         int64           `json:"tokens"`
}

// ToUsageSummaryResponse builds the summary from the effective quotas and today's usage.
func ToUsageSummaryResponse(q domain.AgentQuotas, today domain.AgentUsage) UsageSummaryResponse {
	amountLeft := q.MaxDailyTotalAmount.Sub(today.TotalAmountProcessed)
	if amountLeft.IsNegative() {
		amountLeft = decimal.Zero
	}
	return UsageSummaryResponse{
		Effective:            q.QuotaLimits,
		EmergencyStopEnabled: q.EmergencyStopEnabled,
		Today:                today,
		Remaining: RemainingQuota{
			Invoices:       max(q.DailyInvoiceLimit-today.InvoicesCreated, 0),
			Bills:          max(q.DailyBillLimit-today.BillsCreated, 0),
			JournalEntries: max(q.DailyJournalEntryLimit-today.JournalEntriesCreated, 0),
			Quotations:     max(q.DailyQuotationLimit-today.QuotationsCreated, 0),
			Amount:         amountLeft,
			Tokens:         max(q.DailyTokenLimit-today.TotalTokens(), 0),
		},
	}
}
