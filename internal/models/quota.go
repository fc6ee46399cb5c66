package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentQuotas represents a row of agent_quotas.
type AgentQuotas struct {
	UserID                 string          `db:"user_id"`
	DailyInvoiceLimit      int             `db:"daily_invoice_limit"`
	DailyBillLimit         int             `db:"daily_bill_limit"`
	DailyJournalEntryLimit int             `db:"daily_journal_entry_limit"`
	DailyQuotationLimit    int             `db:"daily_quotation_limit"`
	MaxInvoiceAmount       decimal.Decimal `db:"max_invoice_amount"`
	MaxBillAmount          decimal.Decimal `db:"max_bill_amount"`
	MaxJournalEntryAmount  decimal.Decimal `db:"max_journal_entry_amount"`
	MaxDailyTotalAmount    decimal.Decimal `db:"max_daily_total_amount"`
	MaxActionsPerMinute    int             `db:"max_actions_per_minute"`
	MaxConcurrentWorkflows int             `db:"max_concurrent_workflows"`
	DailyTokenLimit        int64           `db:"daily_token_limit"`
	EmergencyStopEnabled   bool            `db:"emergency_stop_enabled"`
	EmergencyStopReason    *string         `db:"emergency_stop_reason"`
	EmergencyStoppedBy     *string         `db:"emergency_stopped_by"`
	EmergencyStoppedAt     *time.Time      `db:"emergency_stopped_at"`
	AuditFields
}

// AgentUsage represents a row of agent_usage, keyed by user and UTC date.
type AgentUsage struct {
	UserID                string          `db:"user_id"`
	UsageDate             time.Time       `db:"usage_date"`
	InvoicesCreated       int             `db:"invoices_created"`
	BillsCreated          int             `db:"bills_created"`
	JournalEntriesCreated int             `db:"journal_entries_created"`
	QuotationsCreated     int             `db:"quotations_created"`
	TotalActions          int             `db:"total_actions"`
	MutationActions       int             `db:"mutation_actions"`
	ReadActions           int             `db:"read_actions"`
	TotalAmountProcessed  decimal.Decimal `db:"total_amount_processed"`
	InputTokens           int64           `db:"input_tokens"`
	OutputTokens          int64           `db:"output_tokens"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}
