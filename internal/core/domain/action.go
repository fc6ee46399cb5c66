package domain

import (
	"fmt"
	"sort"
)

// ActionType identifies a single governed operation the agent wants to perform.
type ActionType string

const (
	ActionCreateInvoice       ActionType = "create_invoice"
	ActionUpdateInvoice       ActionType = "update_invoice"
	ActionSendInvoice         ActionType = "send_invoice"
	ActionCreateBill          ActionType = "create_bill"
	ActionUpdateBill          ActionType = "update_bill"
	ActionCreateJournalEntry  ActionType = "create_journal_entry"
	ActionPostJournalEntry    ActionType = "post_journal_entry"
	ActionReverseJournalEntry ActionType = "reverse_journal_entry"
	ActionCreateQuotation     ActionType = "create_quotation"
	ActionSendDocument        ActionType = "send_document"
	ActionReadData            ActionType = "read_data"
	ActionAnalyzeData         ActionType = "analyze_data"
	ActionListRecords         ActionType = "list_records"
	ActionGenerateReport      ActionType = "generate_report"
)

// ActionCategory groups actions that share thresholds, caps and counters.
type ActionCategory string

const (
	CategoryInvoice      ActionCategory = "invoice"
	CategoryBill         ActionCategory = "bill"
	CategoryJournalEntry ActionCategory = "journal_entry"
	CategoryQuotation    ActionCategory = "quotation"
	CategoryDocument     ActionCategory = "document"
	CategoryRead         ActionCategory = "read"
)

// UsageCounter names the per-day creation counter an action increments.
type UsageCounter string

const (
	CounterNone           UsageCounter = ""
	CounterInvoices       UsageCounter = "invoices"
	CounterBills          UsageCounter = "bills"
	CounterJournalEntries UsageCounter = "journal_entries"
	CounterQuotations     UsageCounter = "quotations"
)

// ActionKind is the static description of an ActionType.
type ActionKind struct {
	Category     ActionCategory
	DisplayName  string
	AmountField  string // parameter key holding the monetary amount, empty when none
	ReadOnly     bool
	DailyCounter UsageCounter
}

var actionKinds = map[ActionType]ActionKind{
	ActionCreateInvoice:       {Category: CategoryInvoice, DisplayName: "Create invoice", AmountField: "total", DailyCounter: CounterInvoices},
	ActionUpdateInvoice:       {Category: CategoryInvoice, DisplayName: "Update invoice", AmountField: "total"},
	ActionSendInvoice:         {Category: CategoryInvoice, DisplayName: "Send invoice", AmountField: "total"},
	ActionCreateBill:          {Category: CategoryBill, DisplayName: "Create bill", AmountField: "total", DailyCounter: CounterBills},
	ActionUpdateBill:          {Category: CategoryBill, DisplayName: "Update bill", AmountField: "total"},
	ActionCreateJournalEntry:  {Category: CategoryJournalEntry, DisplayName: "Create journal entry", AmountField: "amount", DailyCounter: CounterJournalEntries},
	ActionPostJournalEntry:    {Category: CategoryJournalEntry, DisplayName: "Post journal entry", AmountField: "amount"},
	ActionReverseJournalEntry: {Category: CategoryJournalEntry, DisplayName: "Reverse journal entry", AmountField: "amount"},
	ActionCreateQuotation:     {Category: CategoryQuotation, DisplayName: "Create quotation", AmountField: "total", DailyCounter: CounterQuotations},
	ActionSendDocument:        {Category: CategoryDocument, DisplayName: "Send document"},
	ActionReadData:            {Category: CategoryRead, DisplayName: "Read data", ReadOnly: true},
	ActionAnalyzeData:         {Category: CategoryRead, DisplayName: "Analyze data", ReadOnly: true},
	ActionListRecords:         {Category: CategoryRead, DisplayName: "List records", ReadOnly: true},
	ActionGenerateReport:      {Category: CategoryRead, DisplayName: "Generate report", ReadOnly: true},
}

// Kind returns the static description of the action. ok is false for unknown actions.
func (a ActionType) Kind() (ActionKind, bool) {
	k, ok := actionKinds[a]
	return k, ok
}

// IsValid reports whether the action is part of the known catalog.
func (a ActionType) IsValid() bool {
	_, ok := actionKinds[a]
	return ok
}

// IsReadOnly reports whether the action never mutates financial records.
func (a ActionType) IsReadOnly() bool {
	return actionKinds[a].ReadOnly
}

// Category returns the action's category, or "" for unknown actions.
func (a ActionType) Category() ActionCategory {
	return actionKinds[a].Category
}

// DisplayName returns a human readable label for notifications.
func (a ActionType) DisplayName() string {
	if k, ok := actionKinds[a]; ok {
		return k.DisplayName
	}
	return string(a)
}

func (a ActionType) String() string {
	return string(a)
}

// ParseActionType validates a raw action name.
func ParseActionType(raw string) (ActionType, error) {
	a := ActionType(raw)
	if !a.IsValid() {
		return "", fmt.Errorf("unknown action type %q", raw)
	}
	return a, nil
}

// AllActionTypes returns every known action, sorted by name.
func AllActionTypes() []ActionType {
	out := make([]ActionType, 0, len(actionKinds))
	for a := range actionKinds {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
