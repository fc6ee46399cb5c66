package pgsql

import (
	"context"
	"fmt"
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

type PgxWorkflowRepository struct {
	BaseRepository
}

func newPgxWorkflowRepository(pool *pgxpool.Pool) portsrepo.WorkflowRepositoryWithTx {
	return &PgxWorkflowRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.WorkflowRepositoryWithTx = (*PgxWorkflowRepository)(nil)

const workflowColumns = `
	id, user_id, session_id, name, template_id, total_steps, completed_steps, current_step, status,
	plan, retry_count, max_retries, last_error, created_at, updated_at, started_at, completed_at`

const stepColumns = `
	workflow_id, step_number, action, description, parameters, depends_on, requires_approval, status,
	approval_id, result, error, audit_log_id, started_at, completed_at`

const activeStatusList = `('pending', 'running', 'paused', 'awaiting_approval')`

func scanWorkflow(row pgx.Row) (models.Workflow, error) {
	var m models.Workflow
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.SessionID,
		&m.Name,
		&m.TemplateID,
		&m.TotalSteps,
		&m.CompletedSteps,
		&m.CurrentStep,
		&m.Status,
		&m.Plan,
		&m.RetryCount,
		&m.MaxRetries,
		&m.LastError,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.StartedAt,
		&m.CompletedAt,
	)
	return m, err
}

// FindWorkflowByID loads the header, every step and the full execution log.
func (r *PgxWorkflowRepository) FindWorkflowByID(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1;`
	m, err := scanWorkflow(r.Pool.QueryRow(ctx, query, workflowID))
	if err != nil {
		return nil, notFoundOr(err, "failed to find workflow "+workflowID)
	}
	wf, err := mapping.ToDomainWorkflow(m)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to map workflow "+workflowID, err)
	}

	if wf.Steps, err = r.findSteps(ctx, workflowID); err != nil {
		return nil, err
	}
	if wf.ExecutionLog, err = r.findLog(ctx, workflowID); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *PgxWorkflowRepository) findSteps(ctx context.Context, workflowID string) ([]domain.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE workflow_id = $1 ORDER BY step_number;`
	rows, err := r.Pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query steps for workflow "+workflowID, err)
	}
	defer rows.Close()

	steps := []domain.WorkflowStep{}
	for rows.Next() {
		var s models.WorkflowStep
		err := rows.Scan(
			&s.WorkflowID,
			&s.StepNumber,
			&s.Action,
			&s.Description,
			&s.Parameters,
			&s.DependsOn,
			&s.RequiresApproval,
			&s.Status,
			&s.ApprovalID,
			&s.Result,
			&s.Error,
			&s.AuditLogID,
			&s.StartedAt,
			&s.CompletedAt,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan step row for workflow "+workflowID, err)
		}
		steps = append(steps, mapping.ToDomainWorkflowStep(s))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating step rows for workflow "+workflowID, err)
	}
	return steps, nil
}

func (r *PgxWorkflowRepository) findLog(ctx context.Context, workflowID string) ([]domain.ExecutionLogEntry, error) {
	query := `
		SELECT workflow_id, sequence, step_number, action, outcome, message, audit_log_id, logged_at
		FROM workflow_execution_log
		WHERE workflow_id = $1
		ORDER BY sequence;
	`
	rows, err := r.Pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query execution log for workflow "+workflowID, err)
	}
	defer rows.Close()

	var log []domain.ExecutionLogEntry
	for rows.Next() {
		var e models.ExecutionLogEntry
		if err := rows.Scan(&e.WorkflowID, &e.Sequence, &e.StepNumber, &e.Action, &e.Outcome, &e.Message, &e.AuditLogID, &e.LoggedAt); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan execution log row for workflow "+workflowID, err)
		}
		log = append(log, mapping.ToDomainExecutionLogEntry(e))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating execution log rows for workflow "+workflowID, err)
	}
	return log, nil
}

// ListWorkflows returns headers only, newest first.
func (r *PgxWorkflowRepository) ListWorkflows(ctx context.Context, filter domain.WorkflowFilter) ([]domain.Workflow, error) {
	args := []any{filter.UserID}
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE user_id = $1`
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args)) + `;`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query workflows for user "+filter.UserID, err)
	}
	defer rows.Close()

	workflows := []domain.Workflow{}
	for rows.Next() {
		m, err := scanWorkflow(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan workflow row for user "+filter.UserID, err)
		}
		wf, err := mapping.ToDomainWorkflow(m)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to map workflow "+m.ID, err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating workflow rows for user "+filter.UserID, err)
	}
	return workflows, nil
}

// CountActiveWorkflows counts workflows that have not reached a terminal status.
func (r *PgxWorkflowRepository) CountActiveWorkflows(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM workflows WHERE user_id = $1 AND status IN ` + activeStatusList + `;`
	if err := r.Pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, apperrors.NewAppError(500, "failed to count active workflows for user "+userID, err)
	}
	return count, nil
}

// CreateWorkflowWithinLimit serializes creations per user with an advisory lock, so the
// active count and the insert are evaluated as one unit.
func (r *PgxWorkflowRepository) CreateWorkflowWithinLimit(ctx context.Context, workflow domain.Workflow, limit int) error {
	m, err := mapping.ToModelWorkflow(workflow)
	if err != nil {
		return apperrors.NewAppError(500, "failed to map workflow "+workflow.ID, err)
	}

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, m.UserID); err != nil {
		return apperrors.NewAppError(500, "failed to lock workflows of user "+m.UserID, err)
	}

	var active int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM workflows WHERE user_id = $1 AND status IN `+activeStatusList+`;`, m.UserID).Scan(&active); err != nil {
		return apperrors.NewAppError(500, "failed to count active workflows for user "+m.UserID, err)
	}
	if active >= limit {
		return apperrors.ErrConcurrencyLimit
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
	`
	_, err = tx.Exec(ctx, query,
		m.ID,
		m.UserID,
		m.SessionID,
		m.Name,
		m.TemplateID,
		m.TotalSteps,
		m.CompletedSteps,
		m.CurrentStep,
		m.Status,
		m.Plan,
		m.RetryCount,
		m.MaxRetries,
		m.LastError,
		m.CreatedAt,
		m.UpdatedAt,
		m.StartedAt,
		m.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert workflow "+m.ID, err)
	}

	batch := &pgx.Batch{}
	stepQuery := `INSERT INTO workflow_steps (` + stepColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);`
	for _, step := range workflow.Steps {
		s := mapping.ToModelWorkflowStep(step)
		batch.Queue(stepQuery,
			s.WorkflowID,
			s.StepNumber,
			s.Action,
			s.Description,
			s.Parameters,
			s.DependsOn,
			s.RequiresApproval,
			s.Status,
			s.ApprovalID,
			s.Result,
			s.Error,
			s.AuditLogID,
			s.StartedAt,
			s.CompletedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperrors.NewAppError(500, "failed to insert steps for workflow "+m.ID, err)
	}

	return r.Commit(ctx, tx)
}

// ClaimWorkflowStep flips a pending step to running in its own statement, so only one caller across
// instances gets to execute it.
func (r *PgxWorkflowRepository) ClaimWorkflowStep(ctx context.Context, workflowID string, stepNumber int, startedAt time.Time) (bool, error) {
	query := `
		UPDATE workflow_steps s
		SET status = 'running', started_at = $3
		FROM workflows w
		WHERE s.workflow_id = $1 AND s.step_number = $2 AND s.status = 'pending'
		  AND w.id = s.workflow_id AND w.status = 'running';
	`
	cmdTag, err := r.Pool.Exec(ctx, query, workflowID, stepNumber, startedAt)
	if err != nil {
		return false, apperrors.NewAppError(500, fmt.Sprintf("failed to claim step %d of workflow %s", stepNumber, workflowID), err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// SaveWorkflowProgress writes the header, the changed steps and the new log rows in one transaction.
// The header update only applies while the stored status equals expected.
func (r *PgxWorkflowRepository) SaveWorkflowProgress(ctx context.Context, workflow domain.Workflow, expected domain.WorkflowStatus, steps []domain.WorkflowStep, log []domain.ExecutionLogEntry) error {
	m, err := mapping.ToModelWorkflow(workflow)
	if err != nil {
		return apperrors.NewAppError(500, "failed to map workflow "+workflow.ID, err)
	}

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	headerQuery := `
		UPDATE workflows
		SET completed_steps = $2, current_step = $3, status = $4, retry_count = $5, last_error = $6,
		    updated_at = $7, started_at = $8, completed_at = $9
		WHERE id = $1 AND status = $10;
	`
	cmdTag, err := tx.Exec(ctx, headerQuery,
		m.ID,
		m.CompletedSteps,
		m.CurrentStep,
		m.Status,
		m.RetryCount,
		m.LastError,
		m.UpdatedAt,
		m.StartedAt,
		m.CompletedAt,
		string(expected),
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update workflow "+m.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		var current string
		if err := tx.QueryRow(ctx, `SELECT status FROM workflows WHERE id = $1;`, m.ID).Scan(&current); err != nil {
			return notFoundOr(err, "failed to read status of workflow "+m.ID)
		}
		return fmt.Errorf("workflow %s is %s, expected %s: %w", m.ID, current, expected, apperrors.ErrStaleWorkflow)
	}

	stepQuery := `
		UPDATE workflow_steps
		SET status = $3, approval_id = $4, result = $5, error = $6, audit_log_id = $7, started_at = $8, completed_at = $9
		WHERE workflow_id = $1 AND step_number = $2;
	`
	for _, step := range steps {
		s := mapping.ToModelWorkflowStep(step)
		cmdTag, err := tx.Exec(ctx, stepQuery,
			m.ID,
			s.StepNumber,
			s.Status,
			s.ApprovalID,
			s.Result,
			s.Error,
			s.AuditLogID,
			s.StartedAt,
			s.CompletedAt,
		)
		if err != nil {
			return apperrors.NewAppError(500, fmt.Sprintf("failed to update step %d of workflow %s", s.StepNumber, m.ID), err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("workflow %s step %d: %w", m.ID, s.StepNumber, apperrors.ErrNotFound)
		}
	}

	logQuery := `
		INSERT INTO workflow_execution_log (workflow_id, sequence, step_number, action, outcome, message, audit_log_id, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	for _, entry := range log {
		e := mapping.ToModelExecutionLogEntry(entry)
		if _, err := tx.Exec(ctx, logQuery, m.ID, e.Sequence, e.StepNumber, e.Action, e.Outcome, e.Message, e.AuditLogID, e.LoggedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("workflow %s execution log sequence %d: %w", m.ID, e.Sequence, apperrors.ErrDuplicate)
			}
			return apperrors.NewAppError(500, "failed to append execution log for workflow "+m.ID, err)
		}
	}

	return r.Commit(ctx, tx)
}

type PgxTemplateRepository struct {
	BaseRepository
}

func newPgxTemplateRepository(pool *pgxpool.Pool) portsrepo.TemplateRepositoryFacade {
	return &PgxTemplateRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.TemplateRepositoryFacade = (*PgxTemplateRepository)(nil)

func scanTemplate(row pgx.Row) (domain.WorkflowTemplate, error) {
	var m models.WorkflowTemplate
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Description, &m.Plan, &m.CreatedAt); err != nil {
		return domain.WorkflowTemplate{}, err
	}
	return mapping.ToDomainWorkflowTemplate(m)
}

// FindTemplateByID retrieves a user-defined template.
func (r *PgxTemplateRepository) FindTemplateByID(ctx context.Context, templateID string) (*domain.WorkflowTemplate, error) {
	query := `SELECT id, user_id, name, description, plan, created_at FROM workflow_templates WHERE id = $1;`
	t, err := scanTemplate(r.Pool.QueryRow(ctx, query, templateID))
	if err != nil {
		return nil, notFoundOr(err, "failed to find template "+templateID)
	}
	return &t, nil
}

// ListTemplatesByUser returns the user's templates, oldest first.
func (r *PgxTemplateRepository) ListTemplatesByUser(ctx context.Context, userID string) ([]domain.WorkflowTemplate, error) {
	query := `SELECT id, user_id, name, description, plan, created_at FROM workflow_templates WHERE user_id = $1 ORDER BY created_at;`
	rows, err := r.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query templates for user "+userID, err)
	}
	defer rows.Close()

	var templates []domain.WorkflowTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan template row for user "+userID, err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating template rows for user "+userID, err)
	}
	return templates, nil
}

// SaveTemplate inserts a new user template.
func (r *PgxTemplateRepository) SaveTemplate(ctx context.Context, template domain.WorkflowTemplate) error {
	m, err := mapping.ToModelWorkflowTemplate(template)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	query := `
		INSERT INTO workflow_templates (id, user_id, name, description, plan, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	if _, err := r.Pool.Exec(ctx, query, m.ID, m.UserID, m.Name, m.Description, m.Plan, m.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert template "+m.ID, err)
	}
	return nil
}
