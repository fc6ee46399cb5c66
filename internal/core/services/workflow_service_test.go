package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const testUser = "user-1"

// --- Test Suite Setup ---

type WorkflowServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *testClock
	container *portssvc.ServiceContainer
	repos     portsrepo.RepositoryProvider
	service   portssvc.WorkflowSvcFacade
	executor  *recordingExecutor
}

func (suite *WorkflowServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.clock = newTestClock()
	suite.container, suite.repos = newMemoryContainer(suite.clock, nil, nil)
	suite.service = suite.container.Workflow
	suite.executor = &recordingExecutor{}
}

func (suite *WorkflowServiceTestSuite) create(name string, plan ...dto.StepDefinitionRequest) *domain.Workflow {
	wf, err := suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{
		Name:      name,
		Plan:      plan,
		AutoStart: true,
	})
	suite.Require().NoError(err)
	return wf
}

func (suite *WorkflowServiceTestSuite) execute(workflowID string) *domain.StepOutcome {
	outcome, err := suite.service.ExecuteNextStep(suite.ctx, workflowID, suite.executor.Execute)
	suite.Require().NoError(err)
	return outcome
}

func (suite *WorkflowServiceTestSuite) load(workflowID string) *domain.Workflow {
	wf, err := suite.service.GetWorkflow(suite.ctx, testUser, workflowID)
	suite.Require().NoError(err)
	return wf
}

func (suite *WorkflowServiceTestSuite) step(wf *domain.Workflow, number int) domain.WorkflowStep {
	s, ok := wf.Step(number)
	suite.Require().True(ok)
	return *s
}

func (suite *WorkflowServiceTestSuite) auditFor(workflowID string) []domain.AuditLogEntry {
	resp, err := suite.container.Audit.ListEntries(suite.ctx, testUser, dto.ListAuditParams{WorkflowID: &workflowID, Limit: 100})
	suite.Require().NoError(err)
	return resp.Entries
}

func readStep() dto.StepDefinitionRequest {
	return dto.StepDefinitionRequest{Action: domain.ActionReadData}
}

func gatedStep(action domain.ActionType, total int) dto.StepDefinitionRequest {
	return dto.StepDefinitionRequest{
		Action:           action,
		Description:      "Needs sign-off",
		Parameters:       map[string]any{"total": total, "currency": "USD"},
		RequiresApproval: true,
	}
}

// --- Test Cases ---

func (suite *WorkflowServiceTestSuite) TestReadAnalyzeSend_SuspendsThenCompletesAfterApproval() {
	wf := suite.create("invoice run",
		readStep(),
		dto.StepDefinitionRequest{Action: domain.ActionAnalyzeData, DependsOn: []int{1}},
		dto.StepDefinitionRequest{
			Action:           domain.ActionSendInvoice,
			Parameters:       map[string]any{"total": 500},
			DependsOn:        []int{2},
			RequiresApproval: true,
		},
	)
	suite.Equal(domain.WorkflowRunning, wf.Status)
	suite.Equal(3, wf.TotalSteps)

	suite.True(suite.execute(wf.ID).Success)
	suite.True(suite.execute(wf.ID).Success)

	outcome := suite.execute(wf.ID)
	suite.False(outcome.Success)
	suite.Equal(3, outcome.StepNumber)
	suite.Equal(domain.WorkflowAwaitingApproval, outcome.Status)
	suite.Equal("Approval is required for agent actions", outcome.Reason)
	approvalID, _ := outcome.Result["approvalId"].(string)
	suite.Require().NotEmpty(approvalID)
	suite.Equal([]domain.ActionType{domain.ActionReadData, domain.ActionAnalyzeData}, suite.executor.Calls())

	stored := suite.load(wf.ID)
	suite.Equal(2, stored.CompletedSteps)
	suite.Equal(approvalID, *suite.step(stored, 3).ApprovalID)
	suite.Require().Len(stored.ExecutionLog, 3)
	suite.Equal(domain.OutcomeApprovalRequested, stored.ExecutionLog[2].Outcome)

	outcome = suite.execute(wf.ID)
	suite.False(outcome.Success)
	suite.Equal("awaiting approval", outcome.Reason)
	suite.Len(suite.executor.Calls(), 2)

	_, err := suite.container.Approval.ApproveAction(suite.ctx, approvalID, testUser, nil)
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowRunning, suite.load(wf.ID).Status)

	outcome = suite.execute(wf.ID)
	suite.True(outcome.Success)
	suite.True(outcome.Completed)
	suite.Equal(domain.WorkflowCompleted, outcome.Status)
	suite.Equal(domain.ActionSendInvoice, suite.executor.Calls()[2])

	stored = suite.load(wf.ID)
	suite.Equal(3, stored.CompletedSteps)
	suite.NotNil(stored.CompletedAt)

	entries := suite.auditFor(wf.ID)
	suite.Require().Len(entries, 3)
	for _, e := range entries {
		suite.True(e.Success)
		if e.Action != domain.ActionSendInvoice {
			suite.Equal(domain.ApprovalTypeAuto, e.ApprovalType)
			suite.Equal(domain.ReversibleNo, e.IsReversible)
			continue
		}
		suite.Equal(domain.ApprovalTypeManual, e.ApprovalType)
		suite.Equal(testUser, *e.ApprovedBy)
		suite.Equal(approvalID, *e.ApprovalID)
		suite.Equal(domain.ReversibleYes, e.IsReversible)
		suite.Require().NotNil(e.FinancialImpact)
		suite.True(decimal.NewFromInt(500).Equal(e.FinancialImpact.Amount))
	}

	usage, err := suite.container.Quota.GetUsage(suite.ctx, testUser, suite.clock.Now())
	suite.Require().NoError(err)
	suite.Equal(3, usage.TotalActions)
	suite.Equal(2, usage.ReadActions)
	suite.Equal(1, usage.MutationActions)
	suite.True(decimal.NewFromInt(500).Equal(usage.TotalAmountProcessed))
}

func (suite *WorkflowServiceTestSuite) TestIncompleteDependency_ChangesNothing() {
	wf := suite.create("deps", readStep(), dto.StepDefinitionRequest{Action: domain.ActionAnalyzeData, DependsOn: []int{1}})

	// Point the workflow at step 2 while step 1 is still pending.
	wf.CurrentStep = 2
	suite.Require().NoError(suite.repos.WorkflowRepo.SaveWorkflowProgress(suite.ctx, *wf, domain.WorkflowRunning, nil, nil))
	before := suite.load(wf.ID)

	outcome := suite.execute(wf.ID)
	suite.False(outcome.Success)
	suite.Equal("dependencies not completed", outcome.Reason)
	suite.Empty(suite.executor.Calls())
	suite.Equal(before, suite.load(wf.ID))
	suite.Empty(suite.auditFor(wf.ID))
}

func (suite *WorkflowServiceTestSuite) TestRetry_ResetsOnlyTheFailedStep() {
	wf := suite.create("retry", readStep(), readStep(), readStep())
	suite.True(suite.execute(wf.ID).Success)

	suite.executor.err = errors.New("upstream timeout")
	outcome := suite.execute(wf.ID)
	suite.False(outcome.Success)
	suite.Equal("upstream timeout", outcome.Reason)
	suite.Equal(domain.WorkflowRunning, outcome.Status)

	outcome = suite.execute(wf.ID)
	suite.Equal("step failed, retry the workflow to run it again", outcome.Reason)
	suite.Len(suite.executor.Calls(), 2)

	failed := suite.load(wf.ID)
	suite.Equal(1, failed.RetryCount)
	suite.Equal(domain.StepFailed, suite.step(failed, 2).Status)

	retried, err := suite.service.RetryWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(2, retried.CurrentStep)
	suite.Nil(retried.LastError)
	suite.Equal(1, retried.RetryCount)

	stored := suite.load(wf.ID)
	suite.Equal(suite.step(failed, 1), suite.step(stored, 1))
	suite.Equal(suite.step(failed, 3), suite.step(stored, 3))
	step2 := suite.step(stored, 2)
	suite.Equal(domain.StepPending, step2.Status)
	suite.Nil(step2.Error)

	suite.executor.err = nil
	suite.True(suite.execute(wf.ID).Success)
	outcome = suite.execute(wf.ID)
	suite.True(outcome.Completed)

	_, err = suite.service.RetryWorkflow(suite.ctx, testUser, wf.ID)
	suite.True(errors.Is(err, apperrors.ErrInvalidTransition))
}

func (suite *WorkflowServiceTestSuite) TestFailure_ExhaustsRetryBudget() {
	wf, err := suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{
		Name:       "fragile",
		Plan:       []dto.StepDefinitionRequest{readStep()},
		MaxRetries: 2,
		AutoStart:  true,
	})
	suite.Require().NoError(err)
	suite.executor.err = errors.New("boom")

	suite.Equal(domain.WorkflowRunning, suite.execute(wf.ID).Status)
	_, err = suite.service.RetryWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)

	outcome := suite.execute(wf.ID)
	suite.Equal(domain.WorkflowFailed, outcome.Status)

	stored := suite.load(wf.ID)
	suite.Equal(2, stored.RetryCount)
	suite.Equal("boom", *stored.LastError)
	suite.NotNil(stored.CompletedAt)

	outcome = suite.execute(wf.ID)
	suite.Equal("workflow is failed", outcome.Reason)
	suite.Len(suite.executor.Calls(), 2)

	_, err = suite.service.RetryWorkflow(suite.ctx, testUser, wf.ID)
	suite.True(errors.Is(err, apperrors.ErrInvalidTransition))

	entries := suite.auditFor(wf.ID)
	suite.Require().Len(entries, 2)
	for _, e := range entries {
		suite.False(e.Success)
		suite.Equal("boom", *e.ErrorMessage)
	}
}

func (suite *WorkflowServiceTestSuite) TestConcurrencyCeiling() {
	_, err := suite.container.Quota.UpdateQuotas(suite.ctx, testUser, dto.UpdateQuotasRequest{MaxConcurrentWorkflows: intPtr(2)})
	suite.Require().NoError(err)

	first := suite.create("one", readStep())
	suite.create("two", readStep())

	_, err = suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{
		Name: "three",
		Plan: []dto.StepDefinitionRequest{readStep()},
	})
	suite.True(errors.Is(err, apperrors.ErrConcurrencyLimit))

	list, err := suite.service.ListWorkflows(suite.ctx, testUser, dto.ListWorkflowsParams{Limit: 20})
	suite.Require().NoError(err)
	suite.Len(list.Workflows, 2)

	_, err = suite.service.CancelWorkflow(suite.ctx, testUser, first.ID)
	suite.Require().NoError(err)
	suite.create("three", readStep())
}

func (suite *WorkflowServiceTestSuite) TestQuotaDenial_DoesNotConsumeRetries() {
	_, err := suite.container.Quota.UpdateQuotas(suite.ctx, testUser, dto.UpdateQuotasRequest{DailyInvoiceLimit: intPtr(1)})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.container.Quota.RecordUsage(suite.ctx, testUser, domain.UsageUpdate{Action: domain.ActionCreateInvoice}))

	wf := suite.create("quota", dto.StepDefinitionRequest{Action: domain.ActionCreateInvoice, Parameters: map[string]any{"total": 100}})

	outcome := suite.execute(wf.ID)
	suite.False(outcome.Success)
	suite.Equal("Daily invoice creation limit reached", outcome.Reason)
	suite.Require().NotNil(outcome.Quota)
	suite.False(outcome.Quota.Allowed)
	suite.Empty(suite.executor.Calls())

	stored := suite.load(wf.ID)
	suite.Equal(0, stored.RetryCount)
	suite.Equal(domain.WorkflowRunning, stored.Status)
	suite.Equal(domain.StepPending, suite.step(stored, 1).Status)
}

func (suite *WorkflowServiceTestSuite) TestRejection_FailsWorkflow() {
	wf := suite.create("reject", gatedStep(domain.ActionCreateBill, 200))
	approvalID := suite.execute(wf.ID).Result["approvalId"].(string)

	_, err := suite.container.Approval.RejectAction(suite.ctx, approvalID, testUser, strPtr("wrong vendor"))
	suite.Require().NoError(err)

	stored := suite.load(wf.ID)
	suite.Equal(domain.WorkflowFailed, stored.Status)
	step := suite.step(stored, 1)
	suite.Equal(domain.StepFailed, step.Status)
	suite.Equal("approval rejected", *step.Error)
	last := stored.ExecutionLog[len(stored.ExecutionLog)-1]
	suite.Equal(domain.OutcomeApprovalRejected, last.Outcome)
	suite.Equal("wrong vendor", last.Message)

	suite.Equal("workflow is failed", suite.execute(wf.ID).Reason)
	suite.Empty(suite.executor.Calls())
}

func (suite *WorkflowServiceTestSuite) TestExpiry_FailsStepAndKeepsWorkflowRunning() {
	wf := suite.create("expire", gatedStep(domain.ActionSendInvoice, 200))
	firstApproval := suite.execute(wf.ID).Result["approvalId"].(string)

	suite.clock.Advance(25 * time.Hour)
	outcome := suite.execute(wf.ID)
	suite.False(outcome.Success)
	suite.Equal("approval expired", outcome.Reason)
	suite.Equal(domain.WorkflowRunning, outcome.Status)

	stored := suite.load(wf.ID)
	suite.Equal(domain.WorkflowRunning, stored.Status)
	suite.Equal(0, stored.RetryCount)
	suite.Equal(domain.StepFailed, suite.step(stored, 1).Status)

	approval, err := suite.container.Approval.GetApproval(suite.ctx, testUser, firstApproval)
	suite.Require().NoError(err)
	suite.Equal(domain.ApprovalExpired, approval.Status)

	_, err = suite.service.RetryWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Nil(suite.step(suite.load(wf.ID), 1).ApprovalID)

	outcome = suite.execute(wf.ID)
	suite.Equal(domain.WorkflowAwaitingApproval, outcome.Status)
	suite.NotEqual(firstApproval, outcome.Result["approvalId"])
	suite.Empty(suite.executor.Calls())
}

func (suite *WorkflowServiceTestSuite) TestApproveAfterExpiry_FailsStepThroughObserver() {
	wf := suite.create("late approval", gatedStep(domain.ActionCreateInvoice, 200))
	approvalID := suite.execute(wf.ID).Result["approvalId"].(string)

	suite.clock.Advance(48 * time.Hour)
	_, err := suite.container.Approval.ApproveAction(suite.ctx, approvalID, testUser, nil)
	suite.True(errors.Is(err, apperrors.ErrApprovalExpired))

	stored := suite.load(wf.ID)
	suite.Equal(domain.WorkflowRunning, stored.Status)
	step := suite.step(stored, 1)
	suite.Equal(domain.StepFailed, step.Status)
	suite.Equal("approval expired", *step.Error)
	suite.Equal(domain.OutcomeApprovalExpired, stored.ExecutionLog[len(stored.ExecutionLog)-1].Outcome)
}

func (suite *WorkflowServiceTestSuite) TestResume_StillAwaitingApproval() {
	wf := suite.create("resume", gatedStep(domain.ActionCreateBill, 200))
	approvalID := suite.execute(wf.ID).Result["approvalId"].(string)

	_, err := suite.service.ResumeWorkflow(suite.ctx, testUser, wf.ID)
	suite.True(errors.Is(err, apperrors.ErrInvalidTransition))

	_, err = suite.container.Approval.ApproveAction(suite.ctx, approvalID, testUser, nil)
	suite.Require().NoError(err)
	suite.True(suite.execute(wf.ID).Completed)
}

func (suite *WorkflowServiceTestSuite) TestFullAutonomy_SkipsTheGate() {
	_, err := suite.container.Approval.UpdateSettings(suite.ctx, testUser, dto.UpdateApprovalSettingsRequest{RequireApproval: boolPtr(false)})
	suite.Require().NoError(err)

	wf := suite.create("autonomous", gatedStep(domain.ActionCreateInvoice, 99999))

	_, err = suite.container.Quota.UpdateQuotas(suite.ctx, testUser, dto.UpdateQuotasRequest{MaxInvoiceAmount: dec(100000)})
	suite.Require().NoError(err)

	outcome := suite.execute(wf.ID)
	suite.True(outcome.Success)
	entries := suite.auditFor(wf.ID)
	suite.Require().Len(entries, 1)
	suite.Equal(domain.ApprovalTypeAuto, entries[0].ApprovalType)
	suite.Nil(entries[0].ApprovedBy)
}

func (suite *WorkflowServiceTestSuite) TestLifecycleTransitions() {
	wf, err := suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{
		Name: "manual start",
		Plan: []dto.StepDefinitionRequest{readStep(), readStep()},
	})
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowPending, wf.Status)
	suite.Equal("workflow is pending", suite.execute(wf.ID).Reason)

	_, err = suite.service.PauseWorkflow(suite.ctx, testUser, wf.ID)
	suite.True(errors.Is(err, apperrors.ErrInvalidTransition))

	started, err := suite.service.StartWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowRunning, started.Status)
	suite.NotNil(started.StartedAt)

	_, err = suite.service.StartWorkflow(suite.ctx, testUser, wf.ID)
	suite.True(errors.Is(err, apperrors.ErrInvalidTransition))

	suite.True(suite.execute(wf.ID).Success)

	paused, err := suite.service.PauseWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowPaused, paused.Status)
	suite.Equal("workflow is paused", suite.execute(wf.ID).Reason)

	resumed, err := suite.service.ResumeWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowRunning, resumed.Status)

	cancelled, err := suite.service.CancelWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowCancelled, cancelled.Status)
	suite.NotNil(cancelled.CompletedAt)

	_, err = suite.service.ResumeWorkflow(suite.ctx, testUser, wf.ID)
	suite.True(errors.Is(err, apperrors.ErrInvalidTransition))
	suite.Len(suite.executor.Calls(), 1)
}

func (suite *WorkflowServiceTestSuite) TestCreateFromTemplate() {
	templateID := "invoice-customer"
	wf, err := suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{
		Name:           "Invoice ACME",
		TemplateID:     &templateID,
		StepParameters: map[int]map[string]any{2: {"total": 300, "customer": "acme"}},
	})
	suite.Require().NoError(err)
	suite.Equal(3, wf.TotalSteps)
	suite.Equal(templateID, *wf.TemplateID)
	suite.Equal(300, suite.step(wf, 2).Parameters["total"])
	suite.True(suite.step(wf, 3).RequiresApproval)
	suite.Equal("customer_open_items", suite.step(wf, 1).Parameters["resource"])

	other := "does-not-exist"
	_, err = suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{Name: "x", TemplateID: &other})
	suite.True(errors.Is(err, apperrors.ErrValidation))

	_, err = suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{Name: "empty"})
	suite.True(errors.Is(err, apperrors.ErrValidation))

	_, err = suite.service.GetWorkflow(suite.ctx, "user-2", wf.ID)
	suite.True(errors.Is(err, apperrors.ErrNotFound))
}

func (suite *WorkflowServiceTestSuite) TestUserTemplates() {
	tpl, err := suite.container.Template.CreateTemplate(suite.ctx, testUser, dto.CreateTemplateRequest{
		Name: "Daily check",
		Plan: []dto.StepDefinitionRequest{readStep(), {Action: domain.ActionGenerateReport, DependsOn: []int{1}}},
	})
	suite.Require().NoError(err)

	all, err := suite.container.Template.ListTemplates(suite.ctx, testUser)
	suite.Require().NoError(err)
	suite.Equal(tpl.ID, all[len(all)-1].ID)

	_, err = suite.container.Template.GetTemplate(suite.ctx, "user-2", tpl.ID)
	suite.True(errors.Is(err, apperrors.ErrNotFound))

	wf, err := suite.service.CreateWorkflow(suite.ctx, testUser, dto.CreateWorkflowRequest{Name: "from mine", TemplateID: &tpl.ID})
	suite.Require().NoError(err)
	suite.Equal(2, wf.TotalSteps)
}

func (suite *WorkflowServiceTestSuite) TestConcurrentExecution_RunsStepOnce() {
	wf := suite.create("race", readStep())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.service.ExecuteNextStep(suite.ctx, wf.ID, suite.executor.Execute)
			suite.NoError(err)
		}()
	}
	wg.Wait()

	suite.Len(suite.executor.Calls(), 1)
	suite.Equal(domain.WorkflowCompleted, suite.load(wf.ID).Status)
}

func (suite *WorkflowServiceTestSuite) TestExecute_CancelledContext() {
	wf := suite.create("cancelled", readStep())
	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()

	_, err := suite.service.ExecuteNextStep(ctx, wf.ID, suite.executor.Execute)
	suite.True(errors.Is(err, context.Canceled))
	suite.Empty(suite.executor.Calls())
}

func (suite *WorkflowServiceTestSuite) TestExecute_CallerCancelsMidStep_StepStillCompletes() {
	wf := suite.create("disconnect", readStep())
	ctx, cancel := context.WithCancel(suite.ctx)
	defer cancel()

	executor := func(execCtx context.Context, action domain.ActionType, _ map[string]any) (*domain.ExecutionResult, error) {
		cancel()
		if err := execCtx.Err(); err != nil {
			return nil, err
		}
		return &domain.ExecutionResult{Output: map[string]any{"rows": 3}}, nil
	}

	outcome, err := suite.service.ExecuteNextStep(ctx, wf.ID, executor)
	suite.Require().NoError(err)
	suite.True(outcome.Success)

	stored := suite.load(wf.ID)
	suite.Equal(domain.WorkflowCompleted, stored.Status)
	suite.Equal(0, stored.RetryCount)
	suite.Nil(stored.LastError)
	suite.Equal(domain.StepCompleted, suite.step(stored, 1).Status)
	suite.Len(suite.auditFor(wf.ID), 1)
}

func (suite *WorkflowServiceTestSuite) TestTwoInstances_StepRunsOnceAndCancelSticks() {
	wf := suite.create("shared store", dto.StepDefinitionRequest{Action: domain.ActionCreateInvoice, Parameters: map[string]any{"total": 40}})
	other := newContainerOver(suite.clock, suite.repos)
	otherExecutor := &recordingExecutor{}

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	blocking := func(_ context.Context, action domain.ActionType, _ map[string]any) (*domain.ExecutionResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return &domain.ExecutionResult{Output: map[string]any{"invoice": "inv-1"}}, nil
	}

	type result struct {
		outcome *domain.StepOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := suite.service.ExecuteNextStep(suite.ctx, wf.ID, blocking)
		done <- result{outcome, err}
	}()
	<-started

	inFlight, err := suite.repos.WorkflowRepo.FindWorkflowByID(suite.ctx, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.StepRunning, suite.step(inFlight, 1).Status)

	outcome, err := other.Workflow.ExecuteNextStep(suite.ctx, wf.ID, otherExecutor.Execute)
	suite.Require().NoError(err)
	suite.False(outcome.Success)
	suite.Equal("step is already running", outcome.Reason)
	suite.Empty(otherExecutor.Calls())

	cancelled, err := other.Workflow.CancelWorkflow(suite.ctx, testUser, wf.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.WorkflowCancelled, cancelled.Status)

	close(release)
	res := <-done
	suite.Require().NoError(res.err)
	suite.True(res.outcome.Success)
	suite.Equal(domain.WorkflowCancelled, res.outcome.Status)

	mu.Lock()
	suite.Equal(1, calls)
	mu.Unlock()

	stored := suite.load(wf.ID)
	suite.Equal(domain.WorkflowCancelled, stored.Status)
	suite.Equal(1, stored.CompletedSteps)
	suite.Equal(domain.StepCompleted, suite.step(stored, 1).Status)
	suite.Require().Len(stored.ExecutionLog, 1)
	suite.Equal(1, stored.ExecutionLog[0].Sequence)
	suite.Len(suite.auditFor(wf.ID), 1)

	usage, err := suite.container.Quota.GetUsage(suite.ctx, testUser, suite.clock.Now())
	suite.Require().NoError(err)
	suite.Equal(1, usage.InvoicesCreated)
}

// --- Run Test Suite ---

func TestWorkflowService(t *testing.T) {
	suite.Run(t, new(WorkflowServiceTestSuite))
}
