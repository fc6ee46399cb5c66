package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// QuotaReader defines read operations for per-user quotas.
type QuotaReader interface {
	FindQuotas(ctx context.Context, userID string) (*domain.AgentQuotas, error)
}

// QuotaWriter defines write operations for per-user quotas.
type QuotaWriter interface {
	// GetOrCreateQuotas inserts defaults if no row exists and returns the stored row.
	GetOrCreateQuotas(ctx context.Context, defaults domain.AgentQuotas) (*domain.AgentQuotas, error)

	// SaveQuotaLimits overwrites the numeric limits, leaving emergency stop fields untouched.
	SaveQuotaLimits(ctx context.Context, userID string, limits domain.QuotaLimits, updatedBy string, updatedAt time.Time) error

	// SetEmergencyStop records or clears the emergency stop. Reason and actor are cleared when disabling.
	SetEmergencyStop(ctx context.Context, userID string, enabled bool, reason, actor *string, at time.Time) error
}

// QuotaRepositoryFacade combines all quota repository interfaces.
type QuotaRepositoryFacade interface {
	QuotaReader
	QuotaWriter
}

// UsageReader defines read operations for daily usage counters.
type UsageReader interface {
	// FindUsage returns apperrors.ErrNotFound when nothing was recorded on that day.
	FindUsage(ctx context.Context, userID string, day time.Time) (*domain.AgentUsage, error)

	// ListUsage returns rows with from <= usage_date <= to, newest first.
	ListUsage(ctx context.Context, userID string, from, to time.Time) ([]domain.AgentUsage, error)
}

// UsageWriter defines write operations for daily usage counters.
type UsageWriter interface {
	// IncrementUsage atomically adds delta to the day's row, creating it if absent.
	IncrementUsage(ctx context.Context, userID string, day time.Time, delta domain.UsageDelta, at time.Time) (*domain.AgentUsage, error)

	// ResetUsage zeroes every counter of the day's row.
	ResetUsage(ctx context.Context, userID string, day time.Time, at time.Time) error
}

// UsageRepositoryFacade combines all usage repository interfaces.
type UsageRepositoryFacade interface {
	UsageReader
	UsageWriter
}

// PlanTierRepository maps users to subscription tiers.
type PlanTierRepository interface {
	// FindPlanTier returns apperrors.ErrNotFound when the user has no explicit tier.
	FindPlanTier(ctx context.Context, userID string) (string, error)
	SavePlanTier(ctx context.Context, userID, tier string, at time.Time) error
}
