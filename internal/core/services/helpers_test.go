package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/core/services"
	"github.com/SscSPs/agent_governance/internal/platform/config"
	"github.com/SscSPs/agent_governance/internal/repositories/database/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Mocks ---

// MockPlanQuotaProvider is a mock type for the PlanQuotaProvider type
type MockPlanQuotaProvider struct {
	mock.Mock
}

var _ portssvc.PlanQuotaProvider = (*MockPlanQuotaProvider)(nil)

func (m *MockPlanQuotaProvider) EffectivePlanQuotas(ctx context.Context, userID string) (domain.QuotaLimits, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.QuotaLimits), args.Error(1)
}

// MockSessionNotifier is a mock type for the SessionNotifier type
type MockSessionNotifier struct {
	mock.Mock
}

var _ portssvc.SessionNotifier = (*MockSessionNotifier)(nil)

func (m *MockSessionNotifier) PostMessage(ctx context.Context, sessionID string, text string) error {
	args := m.Called(ctx, sessionID, text)
	return args.Error(0)
}

// MockAuditRepository is a mock type for the AuditRepositoryFacade type
type MockAuditRepository struct {
	mock.Mock
}

var _ portsrepo.AuditRepositoryFacade = (*MockAuditRepository)(nil)

func (m *MockAuditRepository) FindAuditEntryByID(ctx context.Context, entryID string) (*domain.AuditLogEntry, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditRepository) ListAuditEntries(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditRepository) CountAuditEntriesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockAuditRepository) InsertAuditEntry(ctx context.Context, entry domain.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) MarkAuditEntryReversed(ctx context.Context, entryID, reversalEntryID, reversedBy string, at time.Time) (bool, error) {
	args := m.Called(ctx, entryID, reversalEntryID, reversedBy, at)
	return args.Bool(0), args.Error(1)
}

// --- Wiring ---

// newMemoryContainer wires every service over fresh in-memory repositories.
func newMemoryContainer(clock *testClock, plan portssvc.PlanQuotaProvider, notifier portssvc.SessionNotifier) (*portssvc.ServiceContainer, portsrepo.RepositoryProvider) {
	repos := memory.NewRepositoryProvider()
	container, err := services.NewServiceContainer(&config.Config{}, repos, plan, notifier, services.WithClock(clock.Now))
	if err != nil {
		panic(err)
	}
	return container, repos
}

// newContainerOver wires a second set of services over existing repositories, as another instance would.
func newContainerOver(clock *testClock, repos portsrepo.RepositoryProvider) *portssvc.ServiceContainer {
	container, err := services.NewServiceContainer(&config.Config{}, repos, nil, nil, services.WithClock(clock.Now))
	if err != nil {
		panic(err)
	}
	return container
}

// recordingExecutor counts calls and returns the configured result or error.
type recordingExecutor struct {
	mu     sync.Mutex
	calls  []domain.ActionType
	err    error
	result *domain.ExecutionResult
}

func (e *recordingExecutor) Execute(_ context.Context, action domain.ActionType, _ map[string]any) (*domain.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, action)
	if e.err != nil {
		return nil, e.err
	}
	if e.result != nil {
		r := *e.result
		return &r, nil
	}
	return &domain.ExecutionResult{Output: map[string]any{"action": string(action)}}, nil
}

func (e *recordingExecutor) Calls() []domain.ActionType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ActionType(nil), e.calls...)
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func strPtr(v string) *string {
	return &v
}
