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

type approvalSettingsRepository struct {
	mu     sync.RWMutex
	byUser map[string]domain.ApprovalSettings
}

// NewApprovalSettingsRepository creates an in-memory approval settings store.
func NewApprovalSettingsRepository() portsrepo.ApprovalSettingsRepositoryFacade {
	return &approvalSettingsRepository{byUser: map[string]domain.ApprovalSettings{}}
}

func (r *approvalSettingsRepository) FindApprovalSettings(_ context.Context, userID string) (*domain.ApprovalSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	s = cloneSettings(s)
	return &s, nil
}

func (r *approvalSettingsRepository) GetOrCreateApprovalSettings(_ context.Context, defaults domain.ApprovalSettings) (*domain.ApprovalSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[defaults.UserID]
	if !ok {
		s = cloneSettings(defaults)
		r.byUser[defaults.UserID] = s
	}
	s = cloneSettings(s)
	return &s, nil
}

func (r *approvalSettingsRepository) SaveApprovalSettings(_ context.Context, settings domain.ApprovalSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[settings.UserID] = cloneSettings(settings)
	return nil
}

func cloneSettings(s domain.ApprovalSettings) domain.ApprovalSettings {
	if s.AllowedActions != nil {
		s.AllowedActions = append([]domain.ActionType{}, s.AllowedActions...)
	}
	if s.BlockedActions != nil {
		s.BlockedActions = append([]domain.ActionType{}, s.BlockedActions...)
	}
	return s
}

type approvalRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.PendingApproval
}

// NewApprovalRepository creates an in-memory pending approval store.
func NewApprovalRepository() portsrepo.ApprovalRepositoryFacade {
	return &approvalRepository{byID: map[string]domain.PendingApproval{}}
}

func (r *approvalRepository) FindApprovalByID(_ context.Context, approvalID string) (*domain.PendingApproval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[approvalID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &a, nil
}

func (r *approvalRepository) ListApprovals(_ context.Context, userID string, status *domain.ApprovalStatus, limit, offset int) ([]domain.PendingApproval, error) {
	r.mu.RLock()
	var out []domain.PendingApproval
	for _, a := range r.byID {
		if a.UserID != userID || (status != nil && a.Status != *status) {
			continue
		}
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ApprovalID > out[j].ApprovalID
	})
	return page(out, limit, offset), nil
}

func (r *approvalRepository) SaveApproval(_ context.Context, approval domain.PendingApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[approval.ApprovalID]; exists {
		return apperrors.ErrDuplicate
	}
	r.byID[approval.ApprovalID] = approval
	return nil
}

func (r *approvalRepository) ResolveApproval(_ context.Context, approvalID string, resolution domain.ApprovalResolution) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[approvalID]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if a.Status != domain.ApprovalPending || !a.ExpiresAt.After(resolution.ReviewedAt) {
		return false, nil
	}
	reviewer := resolution.ReviewedBy
	reviewedAt := resolution.ReviewedAt
	a.Status = resolution.Status
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &reviewedAt
	a.ReviewNotes = resolution.Notes
	r.byID[approvalID] = a
	return true, nil
}

func (r *approvalRepository) ExpireApproval(_ context.Context, approvalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[approvalID]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if a.Status != domain.ApprovalPending {
		return false, nil
	}
	a.Status = domain.ApprovalExpired
	r.byID[approvalID] = a
	return true, nil
}

func (r *approvalRepository) ExpirePendingBefore(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, a := range r.byID {
		if a.IsExpiredAt(now) {
			a.Status = domain.ApprovalExpired
			r.byID[id] = a
			count++
		}
	}
	return count, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
