package services

import (
	"context"
	"io"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/dto"
)

// AuditLoggerSvc records agent actions.
type AuditLoggerSvc interface {
	// LogAction assigns an id and timestamp and stores the entry. Storage failures are logged, never returned.
	LogAction(ctx context.Context, entry domain.AuditLogEntry) domain.AuditLogEntry
}

// AuditReaderSvc defines read operations for the audit trail. None of them mutate state.
type AuditReaderSvc interface {
	GetEntry(ctx context.Context, userID string, entryID string) (*domain.AuditLogEntry, error)
	ListEntries(ctx context.Context, userID string, params dto.ListAuditParams) (*dto.ListAuditResponse, error)

	// CanUndo is true only for an existing, successful, reversible entry that has not been reversed.
	CanUndo(ctx context.Context, entryID string) (bool, error)

	GetStats(ctx context.Context, userID string, from, to time.Time) (*domain.AuditStats, error)

	// ExportLogs writes the user's matching entries to w as JSON or CSV.
	ExportLogs(ctx context.Context, userID string, filter domain.AuditFilter, format domain.ExportFormat, w io.Writer) error

	// CountRecentActions counts every entry of the user since the given time, failures included.
	CountRecentActions(ctx context.Context, userID string, since time.Time) (int, error)
}

// AuditReversalSvc links compensating actions to original entries.
type AuditReversalSvc interface {
	// MarkReversed sets the reversal pointers once. A second call fails with apperrors.ErrAlreadyReversed.
	MarkReversed(ctx context.Context, entryID, reversalEntryID, actorID string) error

	// RecordReversal writes a new entry for the compensating action and links it to the original.
	RecordReversal(ctx context.Context, userID string, entryID string, reversal domain.ReversalRecord) (*domain.AuditLogEntry, error)
}

// AuditSvcFacade combines all audit-related service interfaces.
type AuditSvcFacade interface {
	AuditLoggerSvc
	AuditReaderSvc
	AuditReversalSvc
}
