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

type PgxApprovalSettingsRepository struct {
	BaseRepository
}

func newPgxApprovalSettingsRepository(pool *pgxpool.Pool) portsrepo.ApprovalSettingsRepositoryFacade {
	return &PgxApprovalSettingsRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ApprovalSettingsRepositoryFacade = (*PgxApprovalSettingsRepository)(nil)

const approvalSettingsColumns = `
	user_id, require_approval, invoice_threshold, bill_threshold, journal_entry_threshold,
	auto_approve_read_only, allowed_actions, blocked_actions,
	notify_on_approval_required, notify_on_resolution, approval_timeout_hours,
	created_at, created_by, last_updated_at, last_updated_by`

func scanApprovalSettings(row pgx.Row) (models.ApprovalSettings, error) {
	var m models.ApprovalSettings
	err := row.Scan(
		&m.UserID,
		&m.RequireApproval,
		&m.InvoiceThreshold,
		&m.BillThreshold,
		&m.JournalEntryThreshold,
		&m.AutoApproveReadOnly,
		&m.AllowedActions,
		&m.BlockedActions,
		&m.NotifyOnApprovalRequired,
		&m.NotifyOnResolution,
		&m.ApprovalTimeoutHours,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	)
	return m, err
}

// FindApprovalSettings retrieves the settings row of a user.
func (r *PgxApprovalSettingsRepository) FindApprovalSettings(ctx context.Context, userID string) (*domain.ApprovalSettings, error) {
	query := `SELECT ` + approvalSettingsColumns + ` FROM approval_settings WHERE user_id = $1;`
	m, err := scanApprovalSettings(r.Pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, notFoundOr(err, "failed to find approval settings for user "+userID)
	}
	d := mapping.ToDomainApprovalSettings(m)
	return &d, nil
}

// GetOrCreateApprovalSettings inserts the defaults unless a row exists, then returns the stored row.
func (r *PgxApprovalSettingsRepository) GetOrCreateApprovalSettings(ctx context.Context, defaults domain.ApprovalSettings) (*domain.ApprovalSettings, error) {
	m := mapping.ToModelApprovalSettings(defaults)
	query := `
		INSERT INTO approval_settings (` + approvalSettingsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO NOTHING;
	`
	_, err := r.Pool.Exec(ctx, query,
		m.UserID,
		m.RequireApproval,
		m.InvoiceThreshold,
		m.BillThreshold,
		m.JournalEntryThreshold,
		m.AutoApproveReadOnly,
		m.AllowedActions,
		m.BlockedActions,
		m.NotifyOnApprovalRequired,
		m.NotifyOnResolution,
		m.ApprovalTimeoutHours,
		m.CreatedAt,
		m.CreatedBy,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to create approval settings for user "+m.UserID, err)
	}
	return r.FindApprovalSettings(ctx, defaults.UserID)
}

// SaveApprovalSettings overwrites every editable column of the row.
func (r *PgxApprovalSettingsRepository) SaveApprovalSettings(ctx context.Context, settings domain.ApprovalSettings) error {
	m := mapping.ToModelApprovalSettings(settings)
	query := `
		UPDATE approval_settings
		SET require_approval = $2, invoice_threshold = $3, bill_threshold = $4, journal_entry_threshold = $5,
		    auto_approve_read_only = $6, allowed_actions = $7, blocked_actions = $8,
		    notify_on_approval_required = $9, notify_on_resolution = $10, approval_timeout_hours = $11,
		    last_updated_at = $12, last_updated_by = $13
		WHERE user_id = $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		m.UserID,
		m.RequireApproval,
		m.InvoiceThreshold,
		m.BillThreshold,
		m.JournalEntryThreshold,
		m.AutoApproveReadOnly,
		m.AllowedActions,
		m.BlockedActions,
		m.NotifyOnApprovalRequired,
		m.NotifyOnResolution,
		m.ApprovalTimeoutHours,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update approval settings for user "+m.UserID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type PgxApprovalRepository struct {
	BaseRepository
}

func newPgxApprovalRepository(pool *pgxpool.Pool) portsrepo.ApprovalRepositoryFacade {
	return &PgxApprovalRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ApprovalRepositoryFacade = (*PgxApprovalRepository)(nil)

const approvalColumns = `
	approval_id, user_id, action_type, action_payload, session_id, workflow_id, step_number,
	reasoning, confidence, status, impact_amount, impact_currency, impact_direction, impact_accounts,
	expires_at, reviewed_by, reviewed_at, review_notes, created_at`

func scanApproval(row pgx.Row) (models.PendingApproval, error) {
	var m models.PendingApproval
	err := row.Scan(
		&m.ApprovalID,
		&m.UserID,
		&m.ActionType,
		&m.ActionPayload,
		&m.SessionID,
		&m.WorkflowID,
		&m.StepNumber,
		&m.Reasoning,
		&m.Confidence,
		&m.Status,
		&m.FinancialImpact.Amount,
		&m.FinancialImpact.Currency,
		&m.FinancialImpact.Direction,
		&m.FinancialImpact.AccountsAffected,
		&m.ExpiresAt,
		&m.ReviewedBy,
		&m.ReviewedAt,
		&m.ReviewNotes,
		&m.CreatedAt,
	)
	return m, err
}

// FindApprovalByID retrieves a single approval.
func (r *PgxApprovalRepository) FindApprovalByID(ctx context.Context, approvalID string) (*domain.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM pending_approvals WHERE approval_id = $1;`
	m, err := scanApproval(r.Pool.QueryRow(ctx, query, approvalID))
	if err != nil {
		return nil, notFoundOr(err, "failed to find approval "+approvalID)
	}
	d := mapping.ToDomainPendingApproval(m)
	return &d, nil
}

// ListApprovals returns a user's approvals, newest first.
func (r *PgxApprovalRepository) ListApprovals(ctx context.Context, userID string, status *domain.ApprovalStatus, limit, offset int) ([]domain.PendingApproval, error) {
	args := []any{userID}
	query := `SELECT ` + approvalColumns + ` FROM pending_approvals WHERE user_id = $1`
	if status != nil {
		args = append(args, string(*status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, approval_id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query approvals for user "+userID, err)
	}
	defer rows.Close()

	approvals := []models.PendingApproval{}
	for rows.Next() {
		m, err := scanApproval(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan approval row for user "+userID, err)
		}
		approvals = append(approvals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating approval rows for user "+userID, err)
	}
	return mapping.ToDomainPendingApprovalSlice(approvals), nil
}

// SaveApproval inserts a new approval request.
func (r *PgxApprovalRepository) SaveApproval(ctx context.Context, approval domain.PendingApproval) error {
	m := mapping.ToModelPendingApproval(approval)
	query := `
		INSERT INTO pending_approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.ApprovalID,
		m.UserID,
		m.ActionType,
		m.ActionPayload,
		m.SessionID,
		m.WorkflowID,
		m.StepNumber,
		m.Reasoning,
		m.Confidence,
		m.Status,
		m.FinancialImpact.Amount,
		m.FinancialImpact.Currency,
		m.FinancialImpact.Direction,
		m.FinancialImpact.AccountsAffected,
		m.ExpiresAt,
		m.ReviewedBy,
		m.ReviewedAt,
		m.ReviewNotes,
		m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert approval "+m.ApprovalID, err)
	}
	return nil
}

// ResolveApproval writes the review fields with a conditional update so only one resolution wins.
func (r *PgxApprovalRepository) ResolveApproval(ctx context.Context, approvalID string, resolution domain.ApprovalResolution) (bool, error) {
	query := `
		UPDATE pending_approvals
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5
		WHERE approval_id = $1 AND status = 'pending' AND expires_at > $4;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, approvalID, string(resolution.Status), resolution.ReviewedBy, resolution.ReviewedAt, resolution.Notes)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to resolve approval "+approvalID, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, approvalID)
}

// ExpireApproval flips a single pending approval to expired.
func (r *PgxApprovalRepository) ExpireApproval(ctx context.Context, approvalID string) (bool, error) {
	query := `UPDATE pending_approvals SET status = 'expired' WHERE approval_id = $1 AND status = 'pending';`
	cmdTag, err := r.Pool.Exec(ctx, query, approvalID)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to expire approval "+approvalID, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, approvalID)
}

// ExpirePendingBefore expires every lapsed pending approval in one statement.
func (r *PgxApprovalRepository) ExpirePendingBefore(ctx context.Context, now time.Time) (int, error) {
	query := `UPDATE pending_approvals SET status = 'expired' WHERE status = 'pending' AND expires_at <= $1;`
	cmdTag, err := r.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, apperrors.NewAppError(500, "failed to expire stale approvals", err)
	}
	return int(cmdTag.RowsAffected()), nil
}

func (r *PgxApprovalRepository) mustExist(ctx context.Context, approvalID string) error {
	found, err := r.exists(ctx, `SELECT 1 FROM pending_approvals WHERE approval_id = $1`, approvalID)
	if err != nil {
		return apperrors.NewAppError(500, "failed to look up approval "+approvalID, err)
	}
	if !found {
		return apperrors.ErrNotFound
	}
	return nil
}
