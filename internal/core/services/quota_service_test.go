package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

func unlimitedPlan() domain.QuotaLimits {
	return domain.QuotaLimits{
		DailyInvoiceLimit:      domain.MaxDailyLimit,
		DailyBillLimit:         domain.MaxDailyLimit,
		DailyJournalEntryLimit: domain.MaxDailyLimit,
		DailyQuotationLimit:    domain.MaxDailyLimit,
		MaxInvoiceAmount:       decimal.NewFromInt(1000000000),
		MaxBillAmount:          decimal.NewFromInt(1000000000),
		MaxJournalEntryAmount:  decimal.NewFromInt(1000000000),
		MaxDailyTotalAmount:    decimal.NewFromInt(1000000000),
		MaxActionsPerMinute:    domain.MaxActionsPerMinute,
		MaxConcurrentWorkflows: domain.MaxConcurrentWorkflows,
		DailyTokenLimit:        domain.MaxDailyTokenLimit,
	}
}

// --- Test Suite Setup ---

type QuotaServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *testClock
	plan    *MockPlanQuotaProvider
	service portssvc.QuotaSvcFacade
	audit   portssvc.AuditSvcFacade
}

func (suite *QuotaServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.clock = newTestClock()
	suite.plan = new(MockPlanQuotaProvider)

	capped := unlimitedPlan()
	capped.DailyInvoiceLimit = 10
	capped.MaxActionsPerMinute = 5
	suite.plan.On("EffectivePlanQuotas", mock.Anything, "capped-user").Return(capped, nil)
	suite.plan.On("EffectivePlanQuotas", mock.Anything, "broken-user").Return(domain.QuotaLimits{}, errors.New("tier lookup failed"))
	suite.plan.On("EffectivePlanQuotas", mock.Anything, mock.Anything).Return(unlimitedPlan(), nil)

	container, _ := newMemoryContainer(suite.clock, suite.plan, nil)
	suite.service = container.Quota
	suite.audit = container.Audit
}

func (suite *QuotaServiceTestSuite) check(userID string, action domain.ActionType, amount *decimal.Decimal) *domain.QuotaCheckResult {
	res, err := suite.service.CheckQuota(suite.ctx, userID, action, amount)
	suite.Require().NoError(err)
	return res
}

func (suite *QuotaServiceTestSuite) assertDenied(res *domain.QuotaCheckResult, reason string, limit, current, remaining int64) {
	suite.False(res.Allowed)
	suite.Equal(reason, res.Reason)
	suite.Require().NotNil(res.Limit)
	suite.Require().NotNil(res.Current)
	suite.Require().NotNil(res.Remaining)
	suite.True(decimal.NewFromInt(limit).Equal(*res.Limit), "limit %s", res.Limit)
	suite.True(decimal.NewFromInt(current).Equal(*res.Current), "current %s", res.Current)
	suite.True(decimal.NewFromInt(remaining).Equal(*res.Remaining), "remaining %s", res.Remaining)
}

func (suite *QuotaServiceTestSuite) record(userID string, update domain.UsageUpdate, times int) {
	for i := 0; i < times; i++ {
		suite.Require().NoError(suite.service.RecordUsage(suite.ctx, userID, update))
	}
}

// --- Test Cases ---

func (suite *QuotaServiceTestSuite) TestEffectiveQuotas_FieldWiseMinimum() {
	own, err := suite.service.GetQuotas(suite.ctx, "capped-user")
	suite.Require().NoError(err)
	suite.Equal(100, own.DailyInvoiceLimit)

	effective, err := suite.service.EffectiveQuotas(suite.ctx, "capped-user")
	suite.Require().NoError(err)
	suite.Equal(10, effective.DailyInvoiceLimit)
	suite.Equal(5, effective.MaxActionsPerMinute)
	suite.Equal(own.DailyBillLimit, effective.DailyBillLimit)
	suite.True(own.MaxDailyTotalAmount.Equal(effective.MaxDailyTotalAmount))

	_, err = suite.service.CheckQuota(suite.ctx, "broken-user", domain.ActionReadData, nil)
	suite.Error(err)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_EmergencyStop() {
	_, err := suite.service.EnableEmergencyStop(suite.ctx, "user-1", "fraud review", "admin-1")
	suite.Require().NoError(err)

	for _, action := range []domain.ActionType{domain.ActionReadData, domain.ActionCreateInvoice} {
		res := suite.check("user-1", action, nil)
		suite.assertDenied(res, "Emergency stop is enabled: fraud review", 0, 0, 0)
	}

	quotas, err := suite.service.GetQuotas(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.True(quotas.EmergencyStopEnabled)
	suite.Equal("admin-1", *quotas.EmergencyStoppedBy)

	_, err = suite.service.DisableEmergencyStop(suite.ctx, "user-1", "admin-1")
	suite.Require().NoError(err)
	suite.True(suite.check("user-1", domain.ActionReadData, nil).Allowed)

	quotas, err = suite.service.GetQuotas(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.False(quotas.EmergencyStopEnabled)
	suite.Nil(quotas.EmergencyStopReason)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_RateLimitBoundary() {
	_, err := suite.service.UpdateQuotas(suite.ctx, "user-1", dto.UpdateQuotasRequest{MaxActionsPerMinute: intPtr(3)})
	suite.Require().NoError(err)

	logAction := func(success bool) {
		suite.audit.LogAction(suite.ctx, domain.AuditLogEntry{UserID: "user-1", Action: domain.ActionReadData, Success: success})
	}
	logAction(true)
	logAction(false)
	suite.True(suite.check("user-1", domain.ActionReadData, nil).Allowed)

	logAction(true)
	res := suite.check("user-1", domain.ActionReadData, nil)
	suite.assertDenied(res, "Rate limit exceeded: maximum 3 actions per minute", 3, 3, 0)

	suite.clock.Advance(61 * time.Second)
	suite.True(suite.check("user-1", domain.ActionReadData, nil).Allowed)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_EmergencyStopPrecedesRateLimit() {
	_, err := suite.service.UpdateQuotas(suite.ctx, "user-1", dto.UpdateQuotasRequest{MaxActionsPerMinute: intPtr(1)})
	suite.Require().NoError(err)
	suite.audit.LogAction(suite.ctx, domain.AuditLogEntry{UserID: "user-1", Action: domain.ActionReadData, Success: true})
	_, err = suite.service.EnableEmergencyStop(suite.ctx, "user-1", "", "user-1")
	suite.Require().NoError(err)

	res := suite.check("user-1", domain.ActionReadData, nil)
	suite.assertDenied(res, "Emergency stop is enabled", 0, 0, 0)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_DailyInvoiceLimit() {
	_, err := suite.service.UpdateQuotas(suite.ctx, "user-1", dto.UpdateQuotasRequest{DailyInvoiceLimit: intPtr(5)})
	suite.Require().NoError(err)
	suite.record("user-1", domain.UsageUpdate{Action: domain.ActionCreateInvoice}, 5)

	res := suite.check("user-1", domain.ActionCreateInvoice, nil)
	suite.assertDenied(res, "Daily invoice creation limit reached", 5, 5, 0)

	suite.True(suite.check("user-1", domain.ActionCreateBill, nil).Allowed)
	suite.True(suite.check("user-1", domain.ActionSendInvoice, nil).Allowed)

	suite.clock.Advance(24 * time.Hour)
	suite.True(suite.check("user-1", domain.ActionCreateInvoice, nil).Allowed)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_AmountCap() {
	res := suite.check("user-1", domain.ActionCreateBill, dec(60000))
	suite.assertDenied(res, "Amount 60000 exceeds the maximum bill amount of 50000", 50000, 60000, 0)

	suite.True(suite.check("user-1", domain.ActionCreateBill, dec(50000)).Allowed)
	suite.True(suite.check("user-1", domain.ActionCreateQuotation, dec(60000)).Allowed)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_DailyTotal() {
	_, err := suite.service.UpdateQuotas(suite.ctx, "user-1", dto.UpdateQuotasRequest{MaxDailyTotalAmount: dec(1000)})
	suite.Require().NoError(err)
	suite.record("user-1", domain.UsageUpdate{Action: domain.ActionCreateInvoice, Amount: dec(800)}, 1)

	suite.True(suite.check("user-1", domain.ActionCreateInvoice, dec(200)).Allowed)

	res := suite.check("user-1", domain.ActionCreateInvoice, dec(300))
	suite.assertDenied(res, "Daily total amount limit of 1000 would be exceeded", 1000, 800, 200)
}

func (suite *QuotaServiceTestSuite) TestCheckQuota_Tokens() {
	updated, err := suite.service.UpdateQuotas(suite.ctx, "user-1", dto.UpdateQuotasRequest{DailyTokenLimit: int64Ptr(10)})
	suite.Require().NoError(err)
	suite.Equal(int64(domain.MinDailyTokenLimit), updated.DailyTokenLimit)

	suite.record("user-1", domain.UsageUpdate{Action: domain.ActionAnalyzeData, InputTokens: 600, OutputTokens: 300}, 1)
	suite.True(suite.check("user-1", domain.ActionAnalyzeData, nil).Allowed)

	suite.record("user-1", domain.UsageUpdate{Action: domain.ActionAnalyzeData, OutputTokens: 100}, 1)
	res := suite.check("user-1", domain.ActionAnalyzeData, nil)
	suite.assertDenied(res, "Daily token limit reached", 1000, 1000, 0)
}

func (suite *QuotaServiceTestSuite) TestUpdateQuotas_Clamps() {
	updated, err := suite.service.UpdateQuotas(suite.ctx, "user-1", dto.UpdateQuotasRequest{
		MaxActionsPerMinute:    intPtr(1000),
		DailyBillLimit:         intPtr(-2),
		MaxConcurrentWorkflows: intPtr(7),
	})
	suite.Require().NoError(err)
	suite.Equal(domain.MaxActionsPerMinute, updated.MaxActionsPerMinute)
	suite.Equal(domain.MinDailyLimit, updated.DailyBillLimit)
	suite.Equal(7, updated.MaxConcurrentWorkflows)
	suite.Equal(100, updated.DailyInvoiceLimit)

	stored, err := suite.service.GetQuotas(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Equal(updated.QuotaLimits, stored.QuotaLimits)
}

func (suite *QuotaServiceTestSuite) TestUsageReadsAndReset() {
	day1 := suite.clock.Now()
	suite.record("user-1", domain.UsageUpdate{Action: domain.ActionCreateInvoice, Amount: dec(250)}, 2)
	suite.clock.Advance(24 * time.Hour)
	suite.record("user-1", domain.UsageUpdate{Action: domain.ActionReadData}, 3)

	history, err := suite.service.GetUsageHistory(suite.ctx, "user-1", 7)
	suite.Require().NoError(err)
	suite.Require().Len(history, 2)
	suite.Equal(3, history[0].ReadActions)
	suite.Equal(2, history[1].InvoicesCreated)
	suite.True(decimal.NewFromInt(500).Equal(history[1].TotalAmountProcessed))

	history, err = suite.service.GetUsageHistory(suite.ctx, "user-1", 1)
	suite.Require().NoError(err)
	suite.Len(history, 1)

	empty, err := suite.service.GetUsage(suite.ctx, "user-1", day1.AddDate(0, 0, -10))
	suite.Require().NoError(err)
	suite.Equal(0, empty.TotalActions)
	suite.True(empty.TotalAmountProcessed.IsZero())

	summary, err := suite.service.GetUsageSummary(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Equal(3, summary.Today.TotalActions)
	suite.Equal(100, summary.Remaining.Invoices)

	suite.Require().NoError(suite.service.ResetUsage(suite.ctx, "user-1", day1, "admin-1"))
	usage, err := suite.service.GetUsage(suite.ctx, "user-1", day1)
	suite.Require().NoError(err)
	suite.Equal(0, usage.InvoicesCreated)
	suite.True(usage.TotalAmountProcessed.IsZero())

	today, err := suite.service.GetUsage(suite.ctx, "user-1", suite.clock.Now())
	suite.Require().NoError(err)
	suite.Equal(3, today.ReadActions)
}

func (suite *QuotaServiceTestSuite) TestRecordUsage_UnknownAction() {
	err := suite.service.RecordUsage(suite.ctx, "user-1", domain.UsageUpdate{Action: "wire_money"})
	suite.Error(err)
}

// --- Run Test Suite ---

func TestQuotaService(t *testing.T) {
	suite.Run(t, new(QuotaServiceTestSuite))
}

func int64Ptr(v int64) *int64 {
	return &v
}
