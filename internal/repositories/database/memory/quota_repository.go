package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
)

type quotaRepository struct {
	mu     sync.RWMutex
	byUser map[string]domain.AgentQuotas
}

// NewQuotaRepository creates an in-memory quota store.
func NewQuotaRepository() portsrepo.QuotaRepositoryFacade {
	return &quotaRepository{byUser: map[string]domain.AgentQuotas{}}
}

func (r *quotaRepository) FindQuotas(_ context.Context, userID string) (*domain.AgentQuotas, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.byUser[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &q, nil
}

func (r *quotaRepository) GetOrCreateQuotas(_ context.Context, defaults domain.AgentQuotas) (*domain.AgentQuotas, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byUser[defaults.UserID]
	if !ok {
		q = defaults
		r.byUser[defaults.UserID] = q
	}
	return &q, nil
}

func (r *quotaRepository) SaveQuotaLimits(_ context.Context, userID string, limits domain.QuotaLimits, updatedBy string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byUser[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	q.QuotaLimits = limits
	q.LastUpdatedBy = updatedBy
	q.LastUpdatedAt = updatedAt
	r.byUser[userID] = q
	return nil
}

func (r *quotaRepository) SetEmergencyStop(_ context.Context, userID string, enabled bool, reason, actor *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byUser[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	q.EmergencyStopEnabled = enabled
	q.LastUpdatedAt = at
	if enabled {
		stoppedAt := at
		q.EmergencyStopReason = reason
		q.EmergencyStoppedBy = actor
		q.EmergencyStoppedAt = &stoppedAt
		if actor != nil {
			q.LastUpdatedBy = *actor
		}
	} else {
		q.EmergencyStopReason = nil
		q.EmergencyStoppedBy = nil
		q.EmergencyStoppedAt = nil
	}
	r.byUser[userID] = q
	return nil
}

type usageKey struct {
	userID string
	day    string
}

func keyFor(userID string, day time.Time) usageKey {
	return usageKey{userID: userID, day: domain.UTCDay(day).Format(time.DateOnly)}
}

type usageRepository struct {
	mu   sync.Mutex
	rows map[usageKey]domain.AgentUsage
}

// NewUsageRepository creates an in-memory daily usage store. Increments are applied under one lock.
func NewUsageRepository() portsrepo.UsageRepositoryFacade {
	return &usageRepository{rows: map[usageKey]domain.AgentUsage{}}
}

func (r *usageRepository) FindUsage(_ context.Context, userID string, day time.Time) (*domain.AgentUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[keyFor(userID, day)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (r *usageRepository) ListUsage(_ context.Context, userID string, from, to time.Time) ([]domain.AgentUsage, error) {
	from, to = domain.UTCDay(from), domain.UTCDay(to)
	r.mu.Lock()
	var out []domain.AgentUsage
	for k, u := range r.rows {
		if k.userID == userID && !u.UsageDate.Before(from) && !u.UsageDate.After(to) {
			out = append(out, u)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UsageDate.After(out[j].UsageDate) })
	return out, nil
}

func (r *usageRepository) IncrementUsage(_ context.Context, userID string, day time.Time, delta domain.UsageDelta, at time.Time) (*domain.AgentUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyFor(userID, day)
	u, ok := r.rows[k]
	if !ok {
		u = domain.EmptyUsage(userID, day)
		u.CreatedAt = at
	}
	u.Apply(delta)
	u.UpdatedAt = at
	r.rows[k] = u
	return &u, nil
}

func (r *usageRepository) ResetUsage(_ context.Context, userID string, day time.Time, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyFor(userID, day)
	u, ok := r.rows[k]
	if !ok {
		return nil
	}
	reset := domain.EmptyUsage(userID, day)
	reset.CreatedAt = u.CreatedAt
	reset.UpdatedAt = at
	r.rows[k] = reset
	return nil
}

type planTierRepository struct {
	mu     sync.RWMutex
	byUser map[string]string
}

// NewPlanTierRepository creates an in-memory user to plan tier map.
func NewPlanTierRepository() portsrepo.PlanTierRepository {
	return &planTierRepository{byUser: map[string]string{}}
}

func (r *planTierRepository) FindPlanTier(_ context.Context, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tier, ok := r.byUser[userID]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return tier, nil
}

func (r *planTierRepository) SavePlanTier(_ context.Context, userID, tier string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = tier
	return nil
}
