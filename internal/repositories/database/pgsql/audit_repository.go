package pgsql

import (
	"context"
	"strconv"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	"github.com/SscSPs/agent_governance/internal/models"
	"github.com/SscSPs/agent_governance/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxAuditRepository writes to audit_logs. A trigger on the table rejects updates to any column
// other than the reversal pointers, and rejects deletes.
type PgxAuditRepository struct {
	BaseRepository
}

func newPgxAuditRepository(pool *pgxpool.Pool) portsrepo.AuditRepositoryFacade {
	return &PgxAuditRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.AuditRepositoryFacade = (*PgxAuditRepository)(nil)

const auditColumns = `
	id, user_id, session_id, workflow_id, workflow_step, action, resource_type, resource_id,
	previous_state, new_state, reasoning, confidence, approved_by, approval_type, approval_id,
	is_reversible, success, error_message, error_details,
	impact_amount, impact_currency, impact_direction, impact_accounts,
	reversed_at, reversed_by, reversal_audit_id, created_at`

func scanAuditLog(row pgx.Row) (models.AuditLog, error) {
	var m models.AuditLog
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.SessionID,
		&m.WorkflowID,
		&m.WorkflowStep,
		&m.Action,
		&m.ResourceType,
		&m.ResourceID,
		&m.PreviousState,
		&m.NewState,
		&m.Reasoning,
		&m.Confidence,
		&m.ApprovedBy,
		&m.ApprovalType,
		&m.ApprovalID,
		&m.IsReversible,
		&m.Success,
		&m.ErrorMessage,
		&m.ErrorDetails,
		&m.FinancialImpact.Amount,
		&m.FinancialImpact.Currency,
		&m.FinancialImpact.Direction,
		&m.FinancialImpact.AccountsAffected,
		&m.ReversedAt,
		&m.ReversedBy,
		&m.ReversalAuditID,
		&m.CreatedAt,
	)
	return m, err
}

// FindAuditEntryByID retrieves a single audit entry.
func (r *PgxAuditRepository) FindAuditEntryByID(ctx context.Context, entryID string) (*domain.AuditLogEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1;`
	m, err := scanAuditLog(r.Pool.QueryRow(ctx, query, entryID))
	if err != nil {
		return nil, notFoundOr(err, "failed to find audit entry "+entryID)
	}
	d := mapping.ToDomainAuditLog(m)
	return &d, nil
}

// ListAuditEntries applies the filter and keyset cursor, newest first.
func (r *PgxAuditRepository) ListAuditEntries(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	args := []any{}
	where := ` WHERE TRUE`
	add := func(clause string, v any) {
		args = append(args, v)
		where += ` AND ` + clause + ` $` + strconv.Itoa(len(args))
	}
	if filter.UserID != "" {
		add(`user_id =`, filter.UserID)
	}
	if filter.Action != nil {
		add(`action =`, string(*filter.Action))
	}
	if filter.WorkflowID != nil {
		add(`workflow_id =`, *filter.WorkflowID)
	}
	if filter.Success != nil {
		add(`success =`, *filter.Success)
	}
	if filter.From != nil {
		add(`created_at >=`, *filter.From)
	}
	if filter.To != nil {
		add(`created_at <`, *filter.To)
	}
	if filter.AfterCreatedAt != nil {
		// Tuple comparison keeps the cursor stable when timestamps collide.
		args = append(args, *filter.AfterCreatedAt, filter.AfterID)
		where += ` AND (created_at, id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.Pool.Query(ctx, query+";", args...)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query audit entries", err)
	}
	defer rows.Close()

	entries := []models.AuditLog{}
	for rows.Next() {
		m, err := scanAuditLog(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan audit row", err)
		}
		entries = append(entries, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating audit rows", err)
	}
	return mapping.ToDomainAuditLogSlice(entries), nil
}

// CountAuditEntriesSince counts every attempt of the user in the window, failures included.
func (r *PgxAuditRepository) CountAuditEntriesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE user_id = $1 AND created_at >= $2;`, userID, since).Scan(&count)
	if err != nil {
		return 0, apperrors.NewAppError(500, "failed to count audit entries for user "+userID, err)
	}
	return count, nil
}

// InsertAuditEntry appends one entry.
func (r *PgxAuditRepository) InsertAuditEntry(ctx context.Context, entry domain.AuditLogEntry) error {
	m := mapping.ToModelAuditLog(entry)
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		        $20, $21, $22, $23, $24, $25, $26, $27);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.ID,
		m.UserID,
		m.SessionID,
		m.WorkflowID,
		m.WorkflowStep,
		m.Action,
		m.ResourceType,
		m.ResourceID,
		m.PreviousState,
		m.NewState,
		m.Reasoning,
		m.Confidence,
		m.ApprovedBy,
		m.ApprovalType,
		m.ApprovalID,
		m.IsReversible,
		m.Success,
		m.ErrorMessage,
		m.ErrorDetails,
		m.FinancialImpact.Amount,
		m.FinancialImpact.Currency,
		m.FinancialImpact.Direction,
		m.FinancialImpact.AccountsAffected,
		m.ReversedAt,
		m.ReversedBy,
		m.ReversalAuditID,
		m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert audit entry "+m.ID, err)
	}
	return nil
}

// MarkAuditEntryReversed sets the reversal pointers only if they are still empty.
func (r *PgxAuditRepository) MarkAuditEntryReversed(ctx context.Context, entryID, reversalEntryID, reversedBy string, at time.Time) (bool, error) {
	query := `
		UPDATE audit_logs
		SET reversed_at = $2, reversed_by = $3, reversal_audit_id = $4
		WHERE id = $1 AND reversed_at IS NULL;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, entryID, at, reversedBy, reversalEntryID)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to mark audit entry "+entryID+" reversed", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	found, err := r.exists(ctx, `SELECT 1 FROM audit_logs WHERE id = $1`, entryID)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to look up audit entry "+entryID, err)
	}
	if !found {
		return false, apperrors.ErrNotFound
	}
	return false, nil
}
