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

type auditRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.AuditLogEntry
}

// NewAuditRepository creates an in-memory audit trail. Entries can only be inserted or have their
// reversal pointers set once.
func NewAuditRepository() portsrepo.AuditRepositoryFacade {
	return &auditRepository{entries: map[string]domain.AuditLogEntry{}}
}

func (r *auditRepository) FindAuditEntryByID(_ context.Context, entryID string) (*domain.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entryID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &e, nil
}

func (r *auditRepository) ListAuditEntries(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	r.mu.RLock()
	var out []domain.AuditLogEntry
	for _, e := range r.entries {
		if !filter.Matches(e) || !beforeCursor(e, filter) {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newerThan(out[i], out[j]) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func newerThan(a, b domain.AuditLogEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// beforeCursor reports whether e sorts strictly after the keyset cursor in the newest-first order.
func beforeCursor(e domain.AuditLogEntry, filter domain.AuditFilter) bool {
	if filter.AfterCreatedAt == nil {
		return true
	}
	cursor := domain.AuditLogEntry{CreatedAt: *filter.AfterCreatedAt, ID: filter.AfterID}
	return newerThan(cursor, e)
}

func (r *auditRepository) CountAuditEntriesSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.entries {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *auditRepository) InsertAuditEntry(_ context.Context, entry domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.ID]; exists {
		return apperrors.ErrDuplicate
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *auditRepository) MarkAuditEntryReversed(_ context.Context, entryID, reversalEntryID, reversedBy string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entryID]
	if !ok || e.ReversedAt != nil {
		return false, nil
	}
	reversedAt := at
	e.ReversedAt = &reversedAt
	e.ReversedBy = &reversedBy
	e.ReversalAuditID = &reversalEntryID
	r.entries[entryID] = e
	return true, nil
}
