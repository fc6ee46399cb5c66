package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type observerRecorder struct {
	mu   sync.Mutex
	seen []domain.PendingApproval
}

func (o *observerRecorder) OnApprovalResolved(_ context.Context, approval domain.PendingApproval) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, approval)
}

func (o *observerRecorder) Seen() []domain.PendingApproval {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.PendingApproval(nil), o.seen...)
}

// --- Test Suite Setup ---

type ApprovalServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *testClock
	notifier *MockSessionNotifier
	service  portssvc.ApprovalSvcFacade
}

func (suite *ApprovalServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.clock = newTestClock()
	suite.notifier = new(MockSessionNotifier)
	container, _ := newMemoryContainer(suite.clock, nil, suite.notifier)
	suite.service = container.Approval
}

func (suite *ApprovalServiceTestSuite) createApproval(userID string, sessionID *string) *domain.PendingApproval {
	approval, err := suite.service.CreateApprovalRequest(suite.ctx, userID, dto.CreateApprovalRequest{
		ActionType:    domain.ActionCreateInvoice,
		ActionPayload: map[string]any{"total": 2500, "currency": "USD"},
		SessionID:     sessionID,
		Reasoning:     "Monthly retainer",
	})
	suite.Require().NoError(err)
	return approval
}

// --- Test Cases ---

func (suite *ApprovalServiceTestSuite) TestDecide_FullAutonomyNeverRequiresApproval() {
	_, err := suite.service.UpdateSettings(suite.ctx, "user-1", dto.UpdateApprovalSettingsRequest{
		RequireApproval:  boolPtr(false),
		InvoiceThreshold: dec(0),
		BlockedActions:   &[]domain.ActionType{domain.ActionSendInvoice},
	})
	suite.Require().NoError(err)

	for _, action := range domain.AllActionTypes() {
		for _, amount := range []*decimal.Decimal{nil, dec(0), dec(999999999)} {
			decision, err := suite.service.Decide(suite.ctx, "user-1", action, amount)
			suite.Require().NoError(err)
			suite.False(decision.RequiresApproval, action)
			suite.Equal("Approval not required: full autonomy is enabled", decision.Reason)
		}
	}
}

func (suite *ApprovalServiceTestSuite) TestDecide_RuleOrder() {
	tests := []struct {
		name          string
		update        dto.UpdateApprovalSettingsRequest
		action        domain.ActionType
		amount        *decimal.Decimal
		wantRequired  bool
		wantReason    string
		wantThreshold *decimal.Decimal
	}{
		{
			name:       "read only auto approved",
			action:     domain.ActionReadData,
			wantReason: "Read-only actions are auto-approved",
		},
		{
			name:         "read only gated when auto approve is off",
			update:       dto.UpdateApprovalSettingsRequest{AutoApproveReadOnly: boolPtr(false)},
			action:       domain.ActionReadData,
			wantRequired: true,
			wantReason:   "Approval is required for agent actions",
		},
		{
			name:         "blocked action",
			update:       dto.UpdateApprovalSettingsRequest{BlockedActions: &[]domain.ActionType{domain.ActionCreateBill}},
			action:       domain.ActionCreateBill,
			amount:       dec(10),
			wantRequired: true,
			wantReason:   "Action is blocked and always requires approval",
		},
		{
			name:         "read only auto approval precedes the deny list",
			update:       dto.UpdateApprovalSettingsRequest{BlockedActions: &[]domain.ActionType{domain.ActionReadData}},
			action:       domain.ActionReadData,
			wantRequired: false,
			wantReason:   "Read-only actions are auto-approved",
		},
		{
			name:         "not allow listed",
			update:       dto.UpdateApprovalSettingsRequest{AllowedActions: &[]domain.ActionType{domain.ActionCreateBill}},
			action:       domain.ActionCreateInvoice,
			wantRequired: true,
			wantReason:   "Action is not in the allowed actions list",
		},
		{
			name:          "amount over threshold",
			action:        domain.ActionCreateInvoice,
			amount:        dec(1500),
			wantRequired:  true,
			wantReason:    "Amount 1500 exceeds the invoice approval threshold of 1000",
			wantThreshold: dec(1000),
		},
		{
			name:         "amount at threshold falls through",
			action:       domain.ActionCreateInvoice,
			amount:       dec(1000),
			wantRequired: true,
			wantReason:   "Approval is required for agent actions",
		},
		{
			name:         "no threshold for quotations",
			action:       domain.ActionCreateQuotation,
			amount:       dec(1000000),
			wantRequired: true,
			wantReason:   "Approval is required for agent actions",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			userID := "user-" + tt.name
			_, err := suite.service.UpdateSettings(suite.ctx, userID, tt.update)
			suite.Require().NoError(err)

			decision, err := suite.service.Decide(suite.ctx, userID, tt.action, tt.amount)
			suite.Require().NoError(err)
			suite.Equal(tt.wantRequired, decision.RequiresApproval)
			suite.Equal(tt.wantReason, decision.Reason)
			if tt.wantThreshold == nil {
				suite.Nil(decision.Threshold)
			} else {
				suite.Require().NotNil(decision.Threshold)
				suite.True(tt.wantThreshold.Equal(*decision.Threshold))
			}
		})
	}
}

func (suite *ApprovalServiceTestSuite) TestDecide_UnknownAction() {
	_, err := suite.service.Decide(suite.ctx, "user-1", "wire_money", nil)
	suite.True(errors.Is(err, apperrors.ErrValidation))
}

func (suite *ApprovalServiceTestSuite) TestUpdateSettings() {
	_, err := suite.service.UpdateSettings(suite.ctx, "user-1", dto.UpdateApprovalSettingsRequest{BillThreshold: dec(-1)})
	suite.True(errors.Is(err, apperrors.ErrValidation))

	_, err = suite.service.UpdateSettings(suite.ctx, "user-1", dto.UpdateApprovalSettingsRequest{
		AllowedActions: &[]domain.ActionType{"not_an_action"},
	})
	suite.True(errors.Is(err, apperrors.ErrValidation))

	settings, err := suite.service.UpdateSettings(suite.ctx, "user-1", dto.UpdateApprovalSettingsRequest{
		ApprovalTimeoutHours: intPtr(10000),
		AllowedActions:       &[]domain.ActionType{domain.ActionReadData},
	})
	suite.Require().NoError(err)
	suite.Equal(domain.MaxApprovalTimeoutHours, settings.ApprovalTimeoutHours)
	suite.Equal([]domain.ActionType{domain.ActionReadData}, settings.AllowedActions)

	settings, err = suite.service.UpdateSettings(suite.ctx, "user-1", dto.UpdateApprovalSettingsRequest{
		AllowedActions: &[]domain.ActionType{},
	})
	suite.Require().NoError(err)
	suite.Nil(settings.AllowedActions)
	suite.True(settings.IsAllowListed(domain.ActionCreateBill))

	stored, err := suite.service.GetSettings(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Equal(domain.MaxApprovalTimeoutHours, stored.ApprovalTimeoutHours)
}

func (suite *ApprovalServiceTestSuite) TestCreateApprovalRequest_SetsExpiryAndImpact() {
	approval := suite.createApproval("user-1", nil)

	suite.Equal(domain.ApprovalPending, approval.Status)
	suite.Equal(suite.clock.Now().Add(24*time.Hour), approval.ExpiresAt)
	suite.Require().NotNil(approval.EstimatedImpact)
	suite.True(decimal.NewFromInt(2500).Equal(approval.EstimatedImpact.Amount))
	suite.Equal("USD", approval.EstimatedImpact.Currency)
	suite.notifier.AssertNotCalled(suite.T(), "PostMessage", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ApprovalServiceTestSuite) TestApprove_Twice() {
	approval := suite.createApproval("user-1", nil)

	approved, err := suite.service.ApproveAction(suite.ctx, approval.ApprovalID, "user-1", strPtr("looks right"))
	suite.Require().NoError(err)
	suite.Equal(domain.ApprovalApproved, approved.Status)
	suite.Require().NotNil(approved.ReviewedBy)
	suite.Equal("user-1", *approved.ReviewedBy)
	suite.Require().NotNil(approved.ReviewedAt)

	_, err = suite.service.ApproveAction(suite.ctx, approval.ApprovalID, "user-1", nil)
	suite.True(errors.Is(err, apperrors.ErrApprovalAlreadyResolved))
	suite.Contains(err.Error(), "already approved")

	_, err = suite.service.RejectAction(suite.ctx, approval.ApprovalID, "user-1", nil)
	suite.True(errors.Is(err, apperrors.ErrApprovalAlreadyResolved))

	stored, err := suite.service.GetApproval(suite.ctx, "user-1", approval.ApprovalID)
	suite.Require().NoError(err)
	suite.Equal(domain.ApprovalApproved, stored.Status)
	suite.Equal("looks right", *stored.ReviewNotes)
}

func (suite *ApprovalServiceTestSuite) TestApprove_AfterExpiry() {
	approval := suite.createApproval("user-1", nil)
	suite.clock.Advance(25 * time.Hour)

	_, err := suite.service.ApproveAction(suite.ctx, approval.ApprovalID, "user-1", nil)
	suite.True(errors.Is(err, apperrors.ErrApprovalExpired))

	stored, err := suite.service.GetApproval(suite.ctx, "user-1", approval.ApprovalID)
	suite.Require().NoError(err)
	suite.Equal(domain.ApprovalExpired, stored.Status)
	suite.Nil(stored.ReviewedBy)

	_, err = suite.service.RejectAction(suite.ctx, approval.ApprovalID, "user-1", nil)
	suite.True(errors.Is(err, apperrors.ErrApprovalAlreadyResolved))
	suite.Contains(err.Error(), "already expired")
}

func (suite *ApprovalServiceTestSuite) TestResolve_OtherUserForbidden() {
	approval := suite.createApproval("user-1", nil)

	_, err := suite.service.RejectAction(suite.ctx, approval.ApprovalID, "user-2", nil)
	suite.True(errors.Is(err, apperrors.ErrForbidden))

	_, err = suite.service.GetApproval(suite.ctx, "user-2", approval.ApprovalID)
	suite.True(errors.Is(err, apperrors.ErrNotFound))
}

func (suite *ApprovalServiceTestSuite) TestResolve_UnknownApproval() {
	_, err := suite.service.ApproveAction(suite.ctx, "missing", "user-1", nil)
	suite.True(errors.Is(err, apperrors.ErrNotFound))
}

func (suite *ApprovalServiceTestSuite) TestNotifications() {
	suite.notifier.On("PostMessage", mock.Anything, "sess-1", mock.MatchedBy(func(text string) bool {
		return len(text) > 0
	})).Return(nil)

	approval := suite.createApproval("user-1", strPtr("sess-1"))
	_, err := suite.service.RejectAction(suite.ctx, approval.ApprovalID, "user-1", strPtr("wrong customer"))
	suite.Require().NoError(err)

	suite.notifier.AssertNumberOfCalls(suite.T(), "PostMessage", 2)
	first := suite.notifier.Calls[0].Arguments.String(2)
	suite.Contains(first, "Approval required: Create invoice for 2500.00 USD")
	suite.Contains(first, approval.ApprovalID)
	second := suite.notifier.Calls[1].Arguments.String(2)
	suite.Contains(second, "was rejected")
	suite.Contains(second, "wrong customer")
}

func (suite *ApprovalServiceTestSuite) TestNotifications_FailureDoesNotFailResolution() {
	suite.notifier.On("PostMessage", mock.Anything, "sess-1", mock.Anything).Return(errors.New("chat is down"))

	approval := suite.createApproval("user-1", strPtr("sess-1"))
	resolved, err := suite.service.ApproveAction(suite.ctx, approval.ApprovalID, "user-1", nil)
	suite.Require().NoError(err)
	suite.Equal(domain.ApprovalApproved, resolved.Status)
}

func (suite *ApprovalServiceTestSuite) TestNotifications_Disabled() {
	_, err := suite.service.UpdateSettings(suite.ctx, "user-1", dto.UpdateApprovalSettingsRequest{
		NotifyOnApprovalRequired: boolPtr(false),
		NotifyOnResolution:       boolPtr(false),
	})
	suite.Require().NoError(err)

	approval := suite.createApproval("user-1", strPtr("sess-1"))
	_, err = suite.service.ApproveAction(suite.ctx, approval.ApprovalID, "user-1", nil)
	suite.Require().NoError(err)
	suite.notifier.AssertNotCalled(suite.T(), "PostMessage", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ApprovalServiceTestSuite) TestObserversSeeEveryResolution() {
	observer := &observerRecorder{}
	suite.service.RegisterObserver(observer)

	approved := suite.createApproval("user-1", nil)
	expiring := suite.createApproval("user-1", nil)

	_, err := suite.service.ApproveAction(suite.ctx, approved.ApprovalID, "user-1", nil)
	suite.Require().NoError(err)

	suite.clock.Advance(25 * time.Hour)
	_, err = suite.service.GetApproval(suite.ctx, "user-1", expiring.ApprovalID)
	suite.Require().NoError(err)

	seen := observer.Seen()
	suite.Require().Len(seen, 2)
	suite.Equal(domain.ApprovalApproved, seen[0].Status)
	suite.Equal(domain.ApprovalExpired, seen[1].Status)
}

func (suite *ApprovalServiceTestSuite) TestListApprovals_PendingFilterExpiresLapsed() {
	suite.createApproval("user-1", nil)
	suite.createApproval("user-1", nil)
	suite.clock.Advance(25 * time.Hour)
	fresh := suite.createApproval("user-1", nil)

	pending := string(domain.ApprovalPending)
	resp, err := suite.service.ListApprovals(suite.ctx, "user-1", dto.ListApprovalsParams{Status: &pending, Limit: 20})
	suite.Require().NoError(err)
	suite.Require().Len(resp.Approvals, 1)
	suite.Equal(fresh.ApprovalID, resp.Approvals[0].ApprovalID)

	expired := string(domain.ApprovalExpired)
	resp, err = suite.service.ListApprovals(suite.ctx, "user-1", dto.ListApprovalsParams{Status: &expired, Limit: 20})
	suite.Require().NoError(err)
	suite.Len(resp.Approvals, 2)

	resp, err = suite.service.ListApprovals(suite.ctx, "user-2", dto.ListApprovalsParams{Limit: 20})
	suite.Require().NoError(err)
	suite.Empty(resp.Approvals)
}

func (suite *ApprovalServiceTestSuite) TestExpireStaleApprovals() {
	suite.createApproval("user-1", nil)
	suite.createApproval("user-2", nil)
	suite.clock.Advance(23 * time.Hour)
	suite.createApproval("user-1", nil)

	count, err := suite.service.ExpireStaleApprovals(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(0, count)

	suite.clock.Advance(time.Hour)
	count, err = suite.service.ExpireStaleApprovals(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(2, count)

	count, err = suite.service.ExpireStaleApprovals(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(0, count)
}

// --- Run Test Suite ---

func TestApprovalService(t *testing.T) {
	suite.Run(t, new(ApprovalServiceTestSuite))
}
