package services_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/core/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestAuditService_LogActionSwallowsStorageErrors(t *testing.T) {
	repo := new(MockAuditRepository)
	clock := newTestClock()
	svc := services.NewAuditService(repo, services.WithClock(clock.Now))

	repo.On("InsertAuditEntry", mock.Anything, mock.AnythingOfType("domain.AuditLogEntry")).Return(errors.New("connection reset"))

	entry := svc.LogAction(context.Background(), domain.AuditLogEntry{
		UserID:       "user-1",
		Action:       domain.ActionCreateBill,
		Success:      true,
		IsReversible: "maybe",
	})

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, clock.Now(), entry.CreatedAt)
	assert.Equal(t, domain.ApprovalTypeAuto, entry.ApprovalType)
	assert.Equal(t, domain.ReversibleNo, entry.IsReversible)
	repo.AssertExpectations(t)
}

// --- Test Suite Setup ---

type AuditServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *testClock
	service portssvc.AuditSvcFacade
}

func (suite *AuditServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.clock = newTestClock()
	container, _ := newMemoryContainer(suite.clock, nil, nil)
	suite.service = container.Audit
}

func (suite *AuditServiceTestSuite) logInvoice(userID string, success bool, reversible domain.Reversibility) domain.AuditLogEntry {
	suite.clock.Advance(time.Second)
	return suite.service.LogAction(suite.ctx, domain.AuditLogEntry{
		UserID:       userID,
		Action:       domain.ActionCreateInvoice,
		ResourceType: "invoice",
		ResourceID:   strPtr("inv-1"),
		Reasoning:    "Monthly retainer",
		Success:      success,
		IsReversible: reversible,
		FinancialImpact: &domain.FinancialImpact{
			Amount:    decimal.NewFromInt(1200),
			Currency:  "EUR",
			Direction: domain.DirectionDebit,
		},
	})
}

// --- Test Cases ---

func (suite *AuditServiceTestSuite) TestListEntries_KeysetPages() {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, suite.logInvoice("user-1", true, domain.ReversibleYes).ID)
	}
	suite.logInvoice("user-2", true, domain.ReversibleYes)

	var seen []string
	params := dto.ListAuditParams{Limit: 2}
	for page := 0; page < 3; page++ {
		resp, err := suite.service.ListEntries(suite.ctx, "user-1", params)
		suite.Require().NoError(err)
		for _, e := range resp.Entries {
			seen = append(seen, e.ID)
		}
		if page < 2 {
			suite.Require().NotNil(resp.NextToken)
			params.NextToken = resp.NextToken
		} else {
			suite.Nil(resp.NextToken)
		}
	}

	suite.Equal([]string{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)
}

func (suite *AuditServiceTestSuite) TestListEntries_ZeroLimitUsesDefaultPage() {
	for i := 0; i < 3; i++ {
		suite.logInvoice("user-1", true, domain.ReversibleYes)
	}

	resp, err := suite.service.ListEntries(suite.ctx, "user-1", dto.ListAuditParams{})
	suite.Require().NoError(err)
	suite.Len(resp.Entries, 3)
	suite.Nil(resp.NextToken)

	resp, err = suite.service.ListEntries(suite.ctx, "user-1", dto.ListAuditParams{Limit: -4})
	suite.Require().NoError(err)
	suite.Len(resp.Entries, 3)
}

func (suite *AuditServiceTestSuite) TestListEntries_Filters() {
	suite.logInvoice("user-1", true, domain.ReversibleYes)
	suite.logInvoice("user-1", false, domain.ReversibleNo)

	failed := false
	resp, err := suite.service.ListEntries(suite.ctx, "user-1", dto.ListAuditParams{Limit: 10, Success: &failed})
	suite.Require().NoError(err)
	suite.Require().Len(resp.Entries, 1)
	suite.False(resp.Entries[0].Success)

	action := string(domain.ActionReadData)
	resp, err = suite.service.ListEntries(suite.ctx, "user-1", dto.ListAuditParams{Limit: 10, Action: &action})
	suite.Require().NoError(err)
	suite.Empty(resp.Entries)

	_, err = suite.service.ListEntries(suite.ctx, "user-1", dto.ListAuditParams{Limit: 10, NextToken: strPtr("!!!")})
	suite.True(errors.Is(err, apperrors.ErrValidation))
}

func (suite *AuditServiceTestSuite) TestCanUndo() {
	reversible := suite.logInvoice("user-1", true, domain.ReversibleYes)
	partial := suite.logInvoice("user-1", true, domain.ReversiblePartial)
	final := suite.logInvoice("user-1", true, domain.ReversibleNo)
	failed := suite.logInvoice("user-1", false, domain.ReversibleYes)

	tests := []struct {
		name    string
		entryID string
		want    bool
	}{
		{name: "reversible", entryID: reversible.ID, want: true},
		{name: "partially reversible", entryID: partial.ID, want: true},
		{name: "not reversible", entryID: final.ID, want: false},
		{name: "failed action", entryID: failed.ID, want: false},
		{name: "missing entry", entryID: "missing", want: false},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			got, err := suite.service.CanUndo(suite.ctx, tt.entryID)
			suite.Require().NoError(err)
			suite.Equal(tt.want, got)
		})
	}
}

func (suite *AuditServiceTestSuite) TestMarkReversed_OnlyOnce() {
	original := suite.logInvoice("user-1", true, domain.ReversibleYes)
	compensation := suite.logInvoice("user-1", true, domain.ReversibleNo)

	suite.Require().NoError(suite.service.MarkReversed(suite.ctx, original.ID, compensation.ID, "user-1"))

	err := suite.service.MarkReversed(suite.ctx, original.ID, compensation.ID, "user-1")
	suite.True(errors.Is(err, apperrors.ErrAlreadyReversed))

	err = suite.service.MarkReversed(suite.ctx, "missing", compensation.ID, "user-1")
	suite.True(errors.Is(err, apperrors.ErrNotFound))

	canUndo, err := suite.service.CanUndo(suite.ctx, original.ID)
	suite.Require().NoError(err)
	suite.False(canUndo)

	stored, err := suite.service.GetEntry(suite.ctx, "user-1", original.ID)
	suite.Require().NoError(err)
	suite.Equal(compensation.ID, *stored.ReversalAuditID)
	suite.Equal("user-1", *stored.ReversedBy)
	suite.Equal(original.Reasoning, stored.Reasoning)
}

func (suite *AuditServiceTestSuite) TestRecordReversal() {
	original := suite.logInvoice("user-1", true, domain.ReversibleYes)

	_, err := suite.service.RecordReversal(suite.ctx, "user-2", original.ID, domain.ReversalRecord{Action: domain.ActionUpdateInvoice})
	suite.True(errors.Is(err, apperrors.ErrNotFound))

	reversal, err := suite.service.RecordReversal(suite.ctx, "user-1", original.ID, domain.ReversalRecord{
		Action:    domain.ActionUpdateInvoice,
		NewState:  map[string]any{"status": "void"},
		Reasoning: "Duplicate invoice",
	})
	suite.Require().NoError(err)
	suite.Equal(domain.ApprovalTypeManual, reversal.ApprovalType)
	suite.Equal("user-1", *reversal.ApprovedBy)
	suite.Equal(domain.ReversibleNo, reversal.IsReversible)
	suite.Equal("invoice", reversal.ResourceType)
	suite.Equal("inv-1", *reversal.ResourceID)

	stored, err := suite.service.GetEntry(suite.ctx, "user-1", original.ID)
	suite.Require().NoError(err)
	suite.True(stored.IsReversed())
	suite.Equal(reversal.ID, *stored.ReversalAuditID)

	_, err = suite.service.RecordReversal(suite.ctx, "user-1", original.ID, domain.ReversalRecord{Action: domain.ActionUpdateInvoice})
	suite.True(errors.Is(err, apperrors.ErrAlreadyReversed))

	final := suite.logInvoice("user-1", true, domain.ReversibleNo)
	_, err = suite.service.RecordReversal(suite.ctx, "user-1", final.ID, domain.ReversalRecord{Action: domain.ActionUpdateInvoice})
	suite.True(errors.Is(err, apperrors.ErrValidation))
}

func (suite *AuditServiceTestSuite) TestGetStats() {
	from := suite.clock.Now()
	original := suite.logInvoice("user-1", true, domain.ReversibleYes)
	suite.logInvoice("user-1", false, domain.ReversibleNo)
	suite.service.LogAction(suite.ctx, domain.AuditLogEntry{UserID: "user-1", Action: domain.ActionReadData, Success: true})
	suite.logInvoice("user-2", true, domain.ReversibleYes)
	compensation := suite.logInvoice("user-1", true, domain.ReversibleNo)
	suite.Require().NoError(suite.service.MarkReversed(suite.ctx, original.ID, compensation.ID, "user-1"))
	to := suite.clock.Now().Add(time.Second)

	stats, err := suite.service.GetStats(suite.ctx, "user-1", from, to)
	suite.Require().NoError(err)
	suite.Equal(4, stats.TotalActions)
	suite.Equal(3, stats.Successful)
	suite.Equal(1, stats.Failed)
	suite.Equal(1, stats.Reversed)
	suite.Equal(3, stats.ByAction[domain.ActionCreateInvoice])
	suite.Equal(1, stats.ByAction[domain.ActionReadData])
	suite.True(decimal.NewFromInt(3600).Equal(stats.ImpactByCurrency["EUR"]))

	_, err = suite.service.GetStats(suite.ctx, "user-1", to, from)
	suite.True(errors.Is(err, apperrors.ErrValidation))
}

func (suite *AuditServiceTestSuite) TestExportLogs() {
	first := suite.logInvoice("user-1", true, domain.ReversibleYes)
	second := suite.logInvoice("user-1", false, domain.ReversibleNo)
	suite.logInvoice("user-2", true, domain.ReversibleYes)

	suite.Run("csv", func() {
		var buf bytes.Buffer
		suite.Require().NoError(suite.service.ExportLogs(suite.ctx, "user-1", domain.AuditFilter{}, domain.ExportCSV, &buf))

		records, err := csv.NewReader(&buf).ReadAll()
		suite.Require().NoError(err)
		suite.Require().Len(records, 3)
		suite.Equal("id", records[0][0])
		suite.Equal(second.ID, records[1][0])
		suite.Equal("false", records[1][9])
		suite.Equal(first.ID, records[2][0])
		suite.Equal("1200", records[2][15])
		suite.Equal("EUR", records[2][16])
		for _, r := range records {
			suite.Len(r, len(records[0]))
		}
	})

	suite.Run("json", func() {
		var buf bytes.Buffer
		success := true
		filter := domain.AuditFilter{Success: &success}
		suite.Require().NoError(suite.service.ExportLogs(suite.ctx, "user-1", filter, domain.ExportJSON, &buf))

		var entries []domain.AuditLogEntry
		suite.Require().NoError(json.Unmarshal(buf.Bytes(), &entries))
		suite.Require().Len(entries, 1)
		suite.Equal(first.ID, entries[0].ID)
	})

	suite.Run("empty json is an empty array", func() {
		var buf bytes.Buffer
		suite.Require().NoError(suite.service.ExportLogs(suite.ctx, "nobody", domain.AuditFilter{}, domain.ExportJSON, &buf))
		suite.JSONEq("[]", buf.String())
	})

	suite.Run("unknown format", func() {
		var buf bytes.Buffer
		err := suite.service.ExportLogs(suite.ctx, "user-1", domain.AuditFilter{}, "xml", &buf)
		suite.True(errors.Is(err, apperrors.ErrValidation))
	})
}

// --- Run Test Suite ---

func TestAuditService(t *testing.T) {
	suite.Run(t, new(AuditServiceTestSuite))
}

func TestTemplateCatalog(t *testing.T) {
	builtIn, err := services.LoadTemplateCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, builtIn)

	ids := map[string]bool{}
	for _, tpl := range builtIn {
		assert.True(t, tpl.BuiltIn)
		assert.False(t, ids[tpl.ID], tpl.ID)
		ids[tpl.ID] = true
		for i, step := range tpl.Plan {
			assert.Equal(t, i+1, step.StepNumber)
		}
	}
	assert.True(t, ids["invoice-customer"])

	_, err = services.ParseTemplateCatalog([]byte("templates:\n  - id: a\n    name: A\n    plan:\n      - action: read_data\n  - id: a\n    name: B\n    plan:\n      - action: read_data\n"))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = services.ParseTemplateCatalog([]byte("templates:\n  - id: a\n    name: A\n    plan:\n      - action: wire_money\n"))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = services.ParseTemplateCatalog([]byte("templates: [not a template"))
	assert.Error(t, err)
}
