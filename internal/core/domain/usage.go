package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentUsage holds one user's counters for a single UTC calendar day.
type AgentUsage struct {
	UserID                string          `json:"userID"`
	UsageDate             time.Time       `json:"usageDate"`
	InvoicesCreated       int             `json:"invoicesCreated"`
	BillsCreated          int             `json:"billsCreated"`
	JournalEntriesCreated int             `json:"journalEntriesCreated"`
	QuotationsCreated     int             `json:"quotationsCreated"`
	TotalActions          int             `json:"totalActions"`
	MutationActions       int             `json:"mutationActions"`
	ReadActions           int             `json:"readActions"`
	TotalAmountProcessed  decimal.Decimal `json:"totalAmountProcessed"`
	InputTokens           int64           `json:"inputTokens"`
	OutputTokens          int64           `json:"outputTokens"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// EmptyUsage is the zero row for a user and day that has no recorded activity yet.
func EmptyUsage(userID string, day time.Time) AgentUsage {
	return AgentUsage{
		UserID:               userID,
		UsageDate:            UTCDay(day),
		TotalAmountProcessed: decimal.Zero,
	}
}

// TotalTokens is input plus output tokens.
func (u AgentUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// CounterValue returns the daily creation count tracked by counter.
func (u AgentUsage) CounterValue(counter UsageCounter) int {
	switch counter {
	case CounterInvoices:
		return u.InvoicesCreated
	case CounterBills:
		return u.BillsCreated
	case CounterJournalEntries:
		return u.JournalEntriesCreated
	case CounterQuotations:
		return u.QuotationsCreated
	}
	return 0
}

// Apply adds delta to the counters. Used by the in-memory store; SQL stores apply the same delta in one statement.
func (u *AgentUsage) Apply(d UsageDelta) {
	u.InvoicesCreated += d.Invoices
	u.BillsCreated += d.Bills
	u.JournalEntriesCreated += d.JournalEntries
	u.QuotationsCreated += d.Quotations
	u.TotalActions += d.TotalActions
	u.MutationActions += d.MutationActions
	u.ReadActions += d.ReadActions
	u.TotalAmountProcessed = u.TotalAmountProcessed.Add(d.Amount)
	u.InputTokens += d.InputTokens
	u.OutputTokens += d.OutputTokens
}

// UsageUpdate describes one governed action to be counted.
type UsageUpdate struct {
	Action       ActionType
	Amount       *decimal.Decimal
	InputTokens  int64
	OutputTokens int64
}

// UsageDelta is the set of column increments an update produces.
type UsageDelta struct {
	Invoices        int
	Bills           int
	JournalEntries  int
	Quotations      int
	TotalActions    int
	MutationActions int
	ReadActions     int
	Amount          decimal.Decimal
	InputTokens     int64
	OutputTokens    int64
}

// Delta derives the column increments from the action kind table.
func (u UsageUpdate) Delta() UsageDelta {
	d := UsageDelta{
		TotalActions: 1,
		Amount:       decimal.Zero,
		InputTokens:  max(u.InputTokens, 0),
		OutputTokens: max(u.OutputTokens, 0),
	}
	kind, _ := u.Action.Kind()
	if kind.ReadOnly {
		d.ReadActions = 1
	} else {
		d.MutationActions = 1
	}
	switch kind.DailyCounter {
	case CounterInvoices:
		d.Invoices = 1
	case CounterBills:
		d.Bills = 1
	case CounterJournalEntries:
		d.JournalEntries = 1
	case CounterQuotations:
		d.Quotations = 1
	}
	if u.Amount != nil && u.Amount.IsPositive() {
		d.Amount = *u.Amount
	}
	return d
}
