package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// AuditReader defines read operations for the audit trail.
type AuditReader interface {
	FindAuditEntryByID(ctx context.Context, entryID string) (*domain.AuditLogEntry, error)

	// ListAuditEntries returns matching entries ordered by created_at desc, id desc.
	ListAuditEntries(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error)

	// CountAuditEntriesSince counts every entry of the user created at or after since, failures included.
	CountAuditEntriesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// AuditWriter defines the only writes the audit trail allows.
type AuditWriter interface {
	InsertAuditEntry(ctx context.Context, entry domain.AuditLogEntry) error

	// MarkAuditEntryReversed sets the reversal pointers once. It reports false if they were already set.
	MarkAuditEntryReversed(ctx context.Context, entryID, reversalEntryID, reversedBy string, at time.Time) (bool, error)
}

// AuditRepositoryFacade combines all audit repository interfaces.
type AuditRepositoryFacade interface {
	AuditReader
	AuditWriter
}
