package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/SscSPs/agent_governance/internal/utils/pagination"
	"github.com/google/uuid"
)

// auditScanBatch is the page size used when stats and exports walk the trail.
const auditScanBatch = 500

// Page size bounds for ListEntries.
const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// auditPageSize clamps a requested page size into (0, maxAuditPageSize].
func auditPageSize(requested int) int {
	switch {
	case requested <= 0:
		return defaultAuditPageSize
	case requested > maxAuditPageSize:
		return maxAuditPageSize
	}
	return requested
}

var auditCSVHeader = []string{
	"id", "created_at", "user_id", "session_id", "workflow_id", "workflow_step", "action",
	"resource_type", "resource_id", "success", "error_message", "approval_type", "approved_by",
	"approval_id", "is_reversible", "amount", "currency", "direction", "reasoning",
	"reversed_at", "reversed_by", "reversal_audit_id",
}

type auditService struct {
	BaseService
	auditRepo portsrepo.AuditRepositoryFacade
}

// NewAuditService creates a new audit trail service.
func NewAuditService(auditRepo portsrepo.AuditRepositoryFacade, options ...ServiceOption) portssvc.AuditSvcFacade {
	return &auditService{
		BaseService: newBaseService(options...),
		auditRepo:   auditRepo,
	}
}

var _ portssvc.AuditSvcFacade = (*auditService)(nil)

func (s *auditService) LogAction(ctx context.Context, entry domain.AuditLogEntry) domain.AuditLogEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = s.Now()
	if entry.ApprovalType == "" {
		entry.ApprovalType = domain.ApprovalTypeAuto
	}
	if !entry.IsReversible.IsValid() {
		entry.IsReversible = domain.ReversibleNo
	}

	if err := s.auditRepo.InsertAuditEntry(ctx, entry); err != nil {
		metrics.RecordAuditWriteFailure()
		s.LogError(ctx, err, "Failed to write audit entry",
			slog.String("audit_id", entry.ID),
			slog.String("user_id", entry.UserID),
			slog.String("action", entry.Action.String()),
			slog.Bool("success", entry.Success))
		return entry
	}
	metrics.RecordAuditEntry(entry.Action.String(), entry.Success)
	return entry
}

func (s *auditService) GetEntry(ctx context.Context, userID string, entryID string) (*domain.AuditLogEntry, error) {
	entry, err := s.auditRepo.FindAuditEntryByID(ctx, entryID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find audit entry", slog.String("audit_id", entryID))
		}
		return nil, err
	}
	if entry.UserID != userID {
		return nil, fmt.Errorf("audit entry %s: %w", entryID, apperrors.ErrNotFound)
	}
	return entry, nil
}

func (s *auditService) ListEntries(ctx context.Context, userID string, params dto.ListAuditParams) (*dto.ListAuditResponse, error) {
	limit := auditPageSize(params.Limit)
	filter := domain.AuditFilter{
		UserID:     userID,
		WorkflowID: params.WorkflowID,
		Success:    params.Success,
		From:       params.From,
		To:         params.To,
		Limit:      limit + 1,
	}
	if params.Action != nil {
		action := domain.ActionType(*params.Action)
		filter.Action = &action
	}
	if params.NextToken != nil && *params.NextToken != "" {
		createdAt, id, err := pagination.DecodeCursorToken(*params.NextToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		filter.AfterCreatedAt = &createdAt
		filter.AfterID = id
	}

	entries, err := s.auditRepo.ListAuditEntries(ctx, filter)
	if err != nil {
		s.LogError(ctx, err, "Failed to list audit entries", slog.String("user_id", userID))
		return nil, err
	}

	resp := &dto.ListAuditResponse{Entries: entries}
	if len(entries) > limit {
		resp.Entries = entries[:limit]
		last := resp.Entries[len(resp.Entries)-1]
		token := pagination.EncodeCursorToken(last.CreatedAt, last.ID)
		resp.NextToken = &token
	}
	if resp.Entries == nil {
		resp.Entries = []domain.AuditLogEntry{}
	}
	return resp, nil
}

func (s *auditService) CanUndo(ctx context.Context, entryID string) (bool, error) {
	entry, err := s.auditRepo.FindAuditEntryByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return entry.CanUndo(), nil
}

func (s *auditService) GetStats(ctx context.Context, userID string, from, to time.Time) (*domain.AuditStats, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: stats window start must be before its end", apperrors.ErrValidation)
	}
	stats := domain.NewAuditStats(userID, from, to)
	filter := domain.AuditFilter{UserID: userID, From: &from, To: &to}
	err := s.scan(ctx, filter, func(e domain.AuditLogEntry) error {
		stats.Add(e)
		return nil
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to aggregate audit stats", slog.String("user_id", userID))
		return nil, err
	}
	return &stats, nil
}

func (s *auditService) ExportLogs(ctx context.Context, userID string, filter domain.AuditFilter, format domain.ExportFormat, w io.Writer) error {
	filter.UserID = userID
	switch format {
	case domain.ExportJSON, "":
		return s.exportJSON(ctx, filter, w)
	case domain.ExportCSV:
		return s.exportCSV(ctx, filter, w)
	}
	return fmt.Errorf("%w: unsupported export format %q", apperrors.ErrValidation, format)
}

func (s *auditService) exportJSON(ctx context.Context, filter domain.AuditFilter, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	first := true
	err := s.scan(ctx, filter, func(e domain.AuditLogEntry) error {
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to export audit entries as JSON", slog.String("user_id", filter.UserID))
		return err
	}
	_, err = io.WriteString(w, "]\n")
	return err
}

func (s *auditService) exportCSV(ctx context.Context, filter domain.AuditFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditCSVHeader); err != nil {
		return err
	}
	err := s.scan(ctx, filter, func(e domain.AuditLogEntry) error {
		return cw.Write(auditCSVRecord(e))
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to export audit entries as CSV", slog.String("user_id", filter.UserID))
		return err
	}
	cw.Flush()
	return cw.Error()
}

// scan walks every entry matching filter, newest first, in keyset pages.
func (s *auditService) scan(ctx context.Context, filter domain.AuditFilter, fn func(domain.AuditLogEntry) error) error {
	filter.Limit = auditScanBatch
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.auditRepo.ListAuditEntries(ctx, filter)
		if err != nil {
			return err
		}
		for _, e := range page {
			if err := fn(e); err != nil {
				return err
			}
		}
		if len(page) < auditScanBatch {
			return nil
		}
		last := page[len(page)-1]
		after := last.CreatedAt
		filter.AfterCreatedAt = &after
		filter.AfterID = last.ID
	}
}

func (s *auditService) CountRecentActions(ctx context.Context, userID string, since time.Time) (int, error) {
	return s.auditRepo.CountAuditEntriesSince(ctx, userID, since)
}

func (s *auditService) MarkReversed(ctx context.Context, entryID, reversalEntryID, actorID string) error {
	ok, err := s.auditRepo.MarkAuditEntryReversed(ctx, entryID, reversalEntryID, actorID, s.Now())
	if err != nil {
		s.LogError(ctx, err, "Failed to mark audit entry reversed", slog.String("audit_id", entryID))
		return err
	}
	if ok {
		s.LogInfo(ctx, "Audit entry marked reversed",
			slog.String("audit_id", entryID),
			slog.String("reversal_audit_id", reversalEntryID),
			slog.String("actor_id", actorID))
		return nil
	}
	// Nothing updated: the entry is missing or already carries a reversal.
	if _, err := s.auditRepo.FindAuditEntryByID(ctx, entryID); err != nil {
		return err
	}
	return fmt.Errorf("audit entry %s: %w", entryID, apperrors.ErrAlreadyReversed)
}

func (s *auditService) RecordReversal(ctx context.Context, userID string, entryID string, reversal domain.ReversalRecord) (*domain.AuditLogEntry, error) {
	original, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if original.IsReversed() {
		return nil, fmt.Errorf("audit entry %s: %w", entryID, apperrors.ErrAlreadyReversed)
	}
	if !original.CanUndo() {
		return nil, fmt.Errorf("%w: audit entry %s cannot be reversed", apperrors.ErrValidation, entryID)
	}

	reviewer := userID
	entry := domain.AuditLogEntry{
		ID:              uuid.NewString(),
		UserID:          userID,
		SessionID:       original.SessionID,
		WorkflowID:      original.WorkflowID,
		Action:          reversal.Action,
		ResourceType:    reversal.ResourceType,
		ResourceID:      reversal.ResourceID,
		PreviousState:   reversal.PreviousState,
		NewState:        reversal.NewState,
		Reasoning:       reversal.Reasoning,
		ApprovedBy:      &reviewer,
		ApprovalType:    domain.ApprovalTypeManual,
		IsReversible:    domain.ReversibleNo,
		Success:         true,
		FinancialImpact: reversal.FinancialImpact,
		CreatedAt:       s.Now(),
	}
	if entry.ResourceType == "" {
		entry.ResourceType = original.ResourceType
	}
	if entry.ResourceID == nil {
		entry.ResourceID = original.ResourceID
	}

	// Unlike LogAction this write must succeed: the original is linked to its id.
	if err := s.auditRepo.InsertAuditEntry(ctx, entry); err != nil {
		s.LogError(ctx, err, "Failed to write reversal audit entry", slog.String("audit_id", entryID))
		return nil, err
	}
	metrics.RecordAuditEntry(entry.Action.String(), true)

	if err := s.MarkReversed(ctx, entryID, entry.ID, userID); err != nil {
		return nil, err
	}
	return &entry, nil
}

func auditCSVRecord(e domain.AuditLogEntry) []string {
	var amount, currency, direction string
	if e.FinancialImpact != nil {
		amount = e.FinancialImpact.Amount.String()
		currency = e.FinancialImpact.Currency
		direction = string(e.FinancialImpact.Direction)
	}
	step := ""
	if e.WorkflowStep != nil {
		step = strconv.Itoa(*e.WorkflowStep)
	}
	reversedAt := ""
	if e.ReversedAt != nil {
		reversedAt = e.ReversedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		e.ID,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UserID,
		deref(e.SessionID),
		deref(e.WorkflowID),
		step,
		e.Action.String(),
		e.ResourceType,
		deref(e.ResourceID),
		strconv.FormatBool(e.Success),
		deref(e.ErrorMessage),
		string(e.ApprovalType),
		deref(e.ApprovedBy),
		deref(e.ApprovalID),
		string(e.IsReversible),
		amount,
		currency,
		direction,
		e.Reasoning,
		reversedAt,
		deref(e.ReversedBy),
		deref(e.ReversalAuditID),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
