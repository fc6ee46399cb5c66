package services

import (
	"context"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/shopspring/decimal"
)

// QuotaReaderSvc defines read operations for quotas and usage.
type QuotaReaderSvc interface {
	// GetQuotas returns the user's own quota row, creating the defaults on first access.
	GetQuotas(ctx context.Context, userID string) (*domain.AgentQuotas, error)

	// EffectiveQuotas is the field-wise minimum of the user's quotas and their plan tier.
	EffectiveQuotas(ctx context.Context, userID string) (*domain.AgentQuotas, error)

	// GetUsage returns the usage row for the UTC day containing day, or a zero row.
	GetUsage(ctx context.Context, userID string, day time.Time) (*domain.AgentUsage, error)

	// GetUsageHistory returns the last days of usage, newest first. Days with no activity are omitted.
	GetUsageHistory(ctx context.Context, userID string, days int) ([]domain.AgentUsage, error)

	GetUsageSummary(ctx context.Context, userID string) (*dto.UsageSummaryResponse, error)
}

// QuotaCheckerSvc decides whether an action fits the user's quotas right now.
type QuotaCheckerSvc interface {
	// CheckQuota evaluates the checks in order and stops at the first denial. Denials are values, never errors.
	CheckQuota(ctx context.Context, userID string, action domain.ActionType, amount *decimal.Decimal) (*domain.QuotaCheckResult, error)
}

// QuotaWriterSvc defines write operations for quotas and usage.
type QuotaWriterSvc interface {
	// RecordUsage atomically increments today's counters for the action.
	RecordUsage(ctx context.Context, userID string, update domain.UsageUpdate) error

	// UpdateQuotas applies the provided fields, clamping every value to its allowed range.
	UpdateQuotas(ctx context.Context, userID string, req dto.UpdateQuotasRequest) (*domain.AgentQuotas, error)

	EnableEmergencyStop(ctx context.Context, userID string, reason string, actorID string) (*domain.AgentQuotas, error)
	DisableEmergencyStop(ctx context.Context, userID string, actorID string) (*domain.AgentQuotas, error)

	// ResetUsage zeroes the counters for the UTC day containing day.
	ResetUsage(ctx context.Context, userID string, day time.Time, actorID string) error
}

// QuotaSvcFacade combines all quota-related service interfaces.
type QuotaSvcFacade interface {
	QuotaReaderSvc
	QuotaCheckerSvc
	QuotaWriterSvc
}

// PlanQuotaProvider returns the quota ceilings implied by a user's subscription tier.
type PlanQuotaProvider interface {
	EffectivePlanQuotas(ctx context.Context, userID string) (domain.QuotaLimits, error)
}
