package domain_test

import (
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestParseActionType(t *testing.T) {
	a, err := domain.ParseActionType("create_invoice")
	assert.NoError(t, err)
	assert.Equal(t, domain.ActionCreateInvoice, a)

	_, err = domain.ParseActionType("delete_everything")
	assert.Error(t, err)
}

func TestActionKindTable(t *testing.T) {
	for _, a := range domain.AllActionTypes() {
		kind, ok := a.Kind()
		assert.True(t, ok, a)
		assert.NotEmpty(t, kind.Category, a)
		assert.NotEmpty(t, kind.DisplayName, a)
		if kind.ReadOnly {
			assert.Empty(t, kind.DailyCounter, a)
			assert.Empty(t, kind.AmountField, a)
		}
	}
	assert.Equal(t, domain.CounterInvoices, mustKind(t, domain.ActionCreateInvoice).DailyCounter)
	assert.Equal(t, "amount", mustKind(t, domain.ActionPostJournalEntry).AmountField)
}

func TestApprovalSettings_ThresholdFor(t *testing.T) {
	s := domain.DefaultApprovalSettings("user-1", testNow)

	th, ok := s.ThresholdFor(domain.ActionSendInvoice)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(1000).Equal(th))

	th, ok = s.ThresholdFor(domain.ActionReverseJournalEntry)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(5000).Equal(th))

	_, ok = s.ThresholdFor(domain.ActionCreateQuotation)
	assert.False(t, ok)
}

func TestApprovalSettings_Lists(t *testing.T) {
	s := domain.DefaultApprovalSettings("user-1", testNow)
	assert.True(t, s.IsAllowListed(domain.ActionCreateBill))

	s.AllowedActions = []domain.ActionType{domain.ActionReadData}
	s.BlockedActions = []domain.ActionType{domain.ActionSendDocument}
	assert.False(t, s.IsAllowListed(domain.ActionCreateBill))
	assert.True(t, s.IsAllowListed(domain.ActionReadData))
	assert.True(t, s.IsBlocked(domain.ActionSendDocument))
	assert.False(t, s.IsBlocked(domain.ActionReadData))
}

func mustKind(t *testing.T, a domain.ActionType) domain.ActionKind {
	t.Helper()
	k, ok := a.Kind()
	assert.True(t, ok)
	return k
}
