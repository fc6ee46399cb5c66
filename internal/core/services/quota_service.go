package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/shopspring/decimal"
)

// rateWindow is the trailing window counted against MaxActionsPerMinute.
const rateWindow = time.Minute

const (
	maxHistoryDays     = 90
	defaultHistoryDays = 7
)

// Quota check results, used as metric labels.
const (
	checkAllowed       = "allowed"
	checkEmergencyStop = "emergency_stop"
	checkRateLimit     = "rate_limit"
	checkDailyCount    = "daily_count"
	checkAmountCap     = "amount_cap"
	checkDailyTotal    = "daily_total"
	checkTokens        = "tokens"
)

var counterNouns = map[domain.UsageCounter]string{
	domain.CounterInvoices:       "invoice",
	domain.CounterBills:          "bill",
	domain.CounterJournalEntries: "journal entry",
	domain.CounterQuotations:     "quotation",
}

type quotaService struct {
	BaseService
	quotaRepo    portsrepo.QuotaRepositoryFacade
	usageRepo    portsrepo.UsageRepositoryFacade
	auditReader  portssvc.AuditReaderSvc
	planProvider portssvc.PlanQuotaProvider
}

// NewQuotaService creates the quota and rate governor. planProvider may be nil, in which case
// the user's own quotas are the effective quotas.
func NewQuotaService(
	quotaRepo portsrepo.QuotaRepositoryFacade,
	usageRepo portsrepo.UsageRepositoryFacade,
	auditReader portssvc.AuditReaderSvc,
	planProvider portssvc.PlanQuotaProvider,
	options ...ServiceOption,
) portssvc.QuotaSvcFacade {
	return &quotaService{
		BaseService:  newBaseService(options...),
		quotaRepo:    quotaRepo,
		usageRepo:    usageRepo,
		auditReader:  auditReader,
		planProvider: planProvider,
	}
}

var _ portssvc.QuotaSvcFacade = (*quotaService)(nil)

func (s *quotaService) GetQuotas(ctx context.Context, userID string) (*domain.AgentQuotas, error) {
	q, err := s.quotaRepo.GetOrCreateQuotas(ctx, domain.DefaultAgentQuotas(userID, s.Now()))
	if err != nil {
		s.LogError(ctx, err, "Failed to load agent quotas", slog.String("user_id", userID))
		return nil, err
	}
	return q, nil
}

func (s *quotaService) EffectiveQuotas(ctx context.Context, userID string) (*domain.AgentQuotas, error) {
	q, err := s.GetQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.planProvider == nil {
		return q, nil
	}
	plan, err := s.planProvider.EffectivePlanQuotas(ctx, userID)
	if err != nil {
		s.LogError(ctx, err, "Failed to load plan quotas", slog.String("user_id", userID))
		return nil, fmt.Errorf("failed to load plan quotas: %w", err)
	}
	effective := *q
	effective.QuotaLimits = domain.MinLimits(q.QuotaLimits, plan)
	return &effective, nil
}

func (s *quotaService) GetUsage(ctx context.Context, userID string, day time.Time) (*domain.AgentUsage, error) {
	usage, err := s.usageRepo.FindUsage(ctx, userID, domain.UTCDay(day))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			empty := domain.EmptyUsage(userID, day)
			return &empty, nil
		}
		s.LogError(ctx, err, "Failed to load usage", slog.String("user_id", userID))
		return nil, err
	}
	return usage, nil
}

func (s *quotaService) GetUsageHistory(ctx context.Context, userID string, days int) ([]domain.AgentUsage, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	days = min(days, maxHistoryDays)
	to := domain.UTCDay(s.Now())
	from := to.AddDate(0, 0, -(days - 1))
	rows, err := s.usageRepo.ListUsage(ctx, userID, from, to)
	if err != nil {
		s.LogError(ctx, err, "Failed to list usage history", slog.String("user_id", userID))
		return nil, err
	}
	if rows == nil {
		rows = []domain.AgentUsage{}
	}
	return rows, nil
}

func (s *quotaService) GetUsageSummary(ctx context.Context, userID string) (*dto.UsageSummaryResponse, error) {
	q, err := s.EffectiveQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}
	today, err := s.GetUsage(ctx, userID, s.Now())
	if err != nil {
		return nil, err
	}
	resp := dto.ToUsageSummaryResponse(*q, *today)
	return &resp, nil
}

func (s *quotaService) CheckQuota(ctx context.Context, userID string, action domain.ActionType, amount *decimal.Decimal) (*domain.QuotaCheckResult, error) {
	kind, ok := action.Kind()
	if !ok {
		return nil, fmt.Errorf("%w: unknown action type %q", apperrors.ErrValidation, action)
	}
	q, err := s.EffectiveQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Now()

	deny := func(check string, res domain.QuotaCheckResult) (*domain.QuotaCheckResult, error) {
		metrics.RecordQuotaCheck(action.String(), check)
		s.LogInfo(ctx, "Quota check denied",
			slog.String("user_id", userID),
			slog.String("action", action.String()),
			slog.String("check", check),
			slog.String("reason", res.Reason))
		return &res, nil
	}

	if q.EmergencyStopEnabled {
		reason := "Emergency stop is enabled"
		if q.EmergencyStopReason != nil && *q.EmergencyStopReason != "" {
			reason += ": " + *q.EmergencyStopReason
		}
		return deny(checkEmergencyStop, domain.Deny(reason, decimal.Zero, decimal.Zero))
	}

	recent, err := s.auditReader.CountRecentActions(ctx, userID, now.Add(-rateWindow))
	if err != nil {
		s.LogError(ctx, err, "Failed to count recent actions", slog.String("user_id", userID))
		return nil, err
	}
	if recent >= q.MaxActionsPerMinute {
		return deny(checkRateLimit, domain.Deny(
			fmt.Sprintf("Rate limit exceeded: maximum %d actions per minute", q.MaxActionsPerMinute),
			decimal.NewFromInt(int64(q.MaxActionsPerMinute)), decimal.NewFromInt(int64(recent))))
	}

	usage, err := s.GetUsage(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if limit, ok := q.DailyLimitFor(kind.DailyCounter); ok {
		current := usage.CounterValue(kind.DailyCounter)
		if current >= limit {
			return deny(checkDailyCount, domain.Deny(
				fmt.Sprintf("Daily %s creation limit reached", counterNouns[kind.DailyCounter]),
				decimal.NewFromInt(int64(limit)), decimal.NewFromInt(int64(current))))
		}
	}

	if amount != nil {
		if limit, ok := q.AmountCapFor(kind.Category); ok && amount.GreaterThan(limit) {
			return deny(checkAmountCap, domain.Deny(
				fmt.Sprintf("Amount %s exceeds the maximum %s amount of %s", amount.String(), kind.Category, limit.String()),
				limit, *amount))
		}
		if usage.TotalAmountProcessed.Add(*amount).GreaterThan(q.MaxDailyTotalAmount) {
			return deny(checkDailyTotal, domain.Deny(
				fmt.Sprintf("Daily total amount limit of %s would be exceeded", q.MaxDailyTotalAmount.String()),
				q.MaxDailyTotalAmount, usage.TotalAmountProcessed))
		}
	}

	if usage.TotalTokens() >= q.DailyTokenLimit {
		return deny(checkTokens, domain.Deny("Daily token limit reached",
			decimal.NewFromInt(q.DailyTokenLimit), decimal.NewFromInt(usage.TotalTokens())))
	}

	metrics.RecordQuotaCheck(action.String(), checkAllowed)
	allowed := domain.Allow()
	return &allowed, nil
}

func (s *quotaService) RecordUsage(ctx context.Context, userID string, update domain.UsageUpdate) error {
	if !update.Action.IsValid() {
		return fmt.Errorf("%w: unknown action type %q", apperrors.ErrValidation, update.Action)
	}
	now := s.Now()
	if _, err := s.usageRepo.IncrementUsage(ctx, userID, domain.UTCDay(now), update.Delta(), now); err != nil {
		s.LogError(ctx, err, "Failed to record usage",
			slog.String("user_id", userID),
			slog.String("action", update.Action.String()))
		return err
	}
	return nil
}

func (s *quotaService) UpdateQuotas(ctx context.Context, userID string, req dto.UpdateQuotasRequest) (*domain.AgentQuotas, error) {
	q, err := s.GetQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	limits := domain.ClampLimits(req.Apply(q.QuotaLimits))
	if err := s.quotaRepo.SaveQuotaLimits(ctx, userID, limits, userID, now); err != nil {
		s.LogError(ctx, err, "Failed to save agent quotas", slog.String("user_id", userID))
		return nil, err
	}
	q.QuotaLimits = limits
	q.LastUpdatedAt = now
	q.LastUpdatedBy = userID

	s.LogInfo(ctx, "Agent quotas updated", slog.String("user_id", userID))
	return q, nil
}

func (s *quotaService) EnableEmergencyStop(ctx context.Context, userID string, reason string, actorID string) (*domain.AgentQuotas, error) {
	q, err := s.GetQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if err := s.quotaRepo.SetEmergencyStop(ctx, userID, true, &reason, &actorID, now); err != nil {
		s.LogError(ctx, err, "Failed to enable emergency stop", slog.String("user_id", userID))
		return nil, err
	}
	q.EmergencyStopEnabled = true
	q.EmergencyStopReason = &reason
	q.EmergencyStoppedBy = &actorID
	q.EmergencyStoppedAt = &now
	q.LastUpdatedAt = now
	q.LastUpdatedBy = actorID

	s.LogWarn(ctx, "Emergency stop enabled",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID),
		slog.String("reason", reason))
	return q, nil
}

func (s *quotaService) DisableEmergencyStop(ctx context.Context, userID string, actorID string) (*domain.AgentQuotas, error) {
	q, err := s.GetQuotas(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if err := s.quotaRepo.SetEmergencyStop(ctx, userID, false, nil, nil, now); err != nil {
		s.LogError(ctx, err, "Failed to disable emergency stop", slog.String("user_id", userID))
		return nil, err
	}
	q.EmergencyStopEnabled = false
	q.EmergencyStopReason = nil
	q.EmergencyStoppedBy = nil
	q.EmergencyStoppedAt = nil
	q.LastUpdatedAt = now
	q.LastUpdatedBy = actorID

	s.LogWarn(ctx, "Emergency stop disabled",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID))
	return q, nil
}

func (s *quotaService) ResetUsage(ctx context.Context, userID string, day time.Time, actorID string) error {
	d := domain.UTCDay(day)
	if err := s.usageRepo.ResetUsage(ctx, userID, d, s.Now()); err != nil {
		s.LogError(ctx, err, "Failed to reset usage",
			slog.String("user_id", userID),
			slog.String("usage_date", d.Format(time.DateOnly)))
		return err
	}
	s.LogWarn(ctx, "Usage reset",
		slog.String("user_id", userID),
		slog.String("usage_date", d.Format(time.DateOnly)),
		slog.String("actor_id", actorID))
	return nil
}
