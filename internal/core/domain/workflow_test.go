package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.WorkflowStatus
		want     bool
	}{
		{domain.WorkflowPending, domain.WorkflowRunning, true},
		{domain.WorkflowPending, domain.WorkflowPaused, false},
		{domain.WorkflowRunning, domain.WorkflowAwaitingApproval, true},
		{domain.WorkflowAwaitingApproval, domain.WorkflowRunning, true},
		{domain.WorkflowAwaitingApproval, domain.WorkflowPaused, false},
		{domain.WorkflowRunning, domain.WorkflowPaused, true},
		{domain.WorkflowPaused, domain.WorkflowRunning, true},
		{domain.WorkflowPaused, domain.WorkflowCancelled, true},
		{domain.WorkflowCompleted, domain.WorkflowRunning, false},
		{domain.WorkflowFailed, domain.WorkflowCancelled, false},
		{domain.WorkflowCancelled, domain.WorkflowRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CanTransition(tt.from, tt.to))
		})
	}
}

func TestWorkflow_TransitionTo(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w := domain.Workflow{ID: "wf-1", Status: domain.WorkflowPending}

	require.NoError(t, w.TransitionTo(domain.WorkflowRunning, now))
	require.NotNil(t, w.StartedAt)
	assert.Equal(t, now, *w.StartedAt)

	err := w.TransitionTo(domain.WorkflowPending, now)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))

	require.NoError(t, w.TransitionTo(domain.WorkflowCompleted, now.Add(time.Minute)))
	require.NotNil(t, w.CompletedAt)
	assert.True(t, w.Status.IsTerminal())
}

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		name    string
		plan    []domain.StepDefinition
		wantErr bool
	}{
		{name: "empty plan", plan: nil, wantErr: true},
		{
			name: "numbers unnumbered steps",
			plan: []domain.StepDefinition{
				{Action: domain.ActionReadData},
				{Action: domain.ActionAnalyzeData, DependsOn: []int{1}},
			},
		},
		{
			name:    "unknown action",
			plan:    []domain.StepDefinition{{Action: "wire_money"}},
			wantErr: true,
		},
		{
			name: "forward dependency",
			plan: []domain.StepDefinition{
				{Action: domain.ActionReadData, DependsOn: []int{2}},
				{Action: domain.ActionAnalyzeData},
			},
			wantErr: true,
		},
		{
			name: "self dependency",
			plan: []domain.StepDefinition{
				{Action: domain.ActionReadData, DependsOn: []int{1}},
			},
			wantErr: true,
		},
		{
			name: "out of order numbering",
			plan: []domain.StepDefinition{
				{StepNumber: 2, Action: domain.ActionReadData},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.NormalizePlan(tt.plan)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperrors.ErrValidation))
				return
			}
			require.NoError(t, err)
			for i, def := range got {
				assert.Equal(t, i+1, def.StepNumber)
				assert.NotNil(t, def.Parameters)
			}
		})
	}
}

func TestWorkflow_DependenciesMet(t *testing.T) {
	plan, err := domain.NormalizePlan([]domain.StepDefinition{
		{Action: domain.ActionReadData},
		{Action: domain.ActionAnalyzeData, DependsOn: []int{1}},
	})
	require.NoError(t, err)
	w := domain.NewWorkflow("wf-1", "user-1", "test", nil, nil, plan, 0, time.Now())

	assert.Equal(t, domain.DefaultMaxRetries, w.MaxRetries)
	assert.False(t, w.DependenciesMet(w.Steps[1]))

	w.Steps[0].Status = domain.StepCompleted
	assert.True(t, w.DependenciesMet(w.Steps[1]))
}

func TestAuditLogEntry_CanUndo(t *testing.T) {
	reversedAt := time.Now()
	tests := []struct {
		name  string
		entry domain.AuditLogEntry
		want  bool
	}{
		{name: "reversible success", entry: domain.AuditLogEntry{IsReversible: domain.ReversibleYes, Success: true}, want: true},
		{name: "partial success", entry: domain.AuditLogEntry{IsReversible: domain.ReversiblePartial, Success: true}, want: true},
		{name: "not reversible", entry: domain.AuditLogEntry{IsReversible: domain.ReversibleNo, Success: true}, want: false},
		{name: "failed action", entry: domain.AuditLogEntry{IsReversible: domain.ReversibleYes, Success: false}, want: false},
		{name: "already reversed", entry: domain.AuditLogEntry{IsReversible: domain.ReversibleYes, Success: true, ReversedAt: &reversedAt}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.CanUndo())
		})
	}
}

func TestAmountFromParameters(t *testing.T) {
	tests := []struct {
		name   string
		action domain.ActionType
		params map[string]any
		want   *decimal.Decimal
	}{
		{name: "float total", action: domain.ActionCreateInvoice, params: map[string]any{"total": 1500.5}, want: decimalPtr(decimal.RequireFromString("1500.5"))},
		{name: "string amount", action: domain.ActionCreateJournalEntry, params: map[string]any{"amount": "250.00"}, want: decimalPtr(decimal.NewFromInt(250))},
		{name: "read action has no amount", action: domain.ActionReadData, params: map[string]any{"total": 10}, want: nil},
		{name: "missing field", action: domain.ActionCreateBill, params: map[string]any{}, want: nil},
		{name: "unparsable", action: domain.ActionCreateBill, params: map[string]any{"total": "lots"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.AmountFromParameters(tt.action, tt.params)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
		})
	}
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
