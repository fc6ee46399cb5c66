package pgsql

import (
	"context"
	"errors"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	"github.com/SscSPs/agent_governance/internal/models"
	"github.com/SscSPs/agent_governance/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxQuotaRepository struct {
	BaseRepository
}

func newPgxQuotaRepository(pool *pgxpool.Pool) portsrepo.QuotaRepositoryFacade {
	return &PgxQuotaRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.QuotaRepositoryFacade = (*PgxQuotaRepository)(nil)

const quotaColumns = `
	user_id, daily_invoice_limit, daily_bill_limit, daily_journal_entry_limit, daily_quotation_limit,
	max_invoice_amount, max_bill_amount, max_journal_entry_amount, max_daily_total_amount,
	max_actions_per_minute, max_concurrent_workflows, daily_token_limit,
	emergency_stop_enabled, emergency_stop_reason, emergency_stopped_by, emergency_stopped_at,
	created_at, created_by, last_updated_at, last_updated_by`

func scanQuotas(row pgx.Row) (models.AgentQuotas, error) {
	var m models.AgentQuotas
	err := row.Scan(
		&m.UserID,
		&m.DailyInvoiceLimit,
		&m.DailyBillLimit,
		&m.DailyJournalEntryLimit,
		&m.DailyQuotationLimit,
		&m.MaxInvoiceAmount,
		&m.MaxBillAmount,
		&m.MaxJournalEntryAmount,
		&m.MaxDailyTotalAmount,
		&m.MaxActionsPerMinute,
		&m.MaxConcurrentWorkflows,
		&m.DailyTokenLimit,
		&m.EmergencyStopEnabled,
		&m.EmergencyStopReason,
		&m.EmergencyStoppedBy,
		&m.EmergencyStoppedAt,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	)
	return m, err
}

// FindQuotas retrieves the quota row of a user.
func (r *PgxQuotaRepository) FindQuotas(ctx context.Context, userID string) (*domain.AgentQuotas, error) {
	query := `SELECT ` + quotaColumns + ` FROM agent_quotas WHERE user_id = $1;`
	m, err := scanQuotas(r.Pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, notFoundOr(err, "failed to find quotas for user "+userID)
	}
	d := mapping.ToDomainAgentQuotas(m)
	return &d, nil
}

// GetOrCreateQuotas inserts the defaults unless a row exists, then returns the stored row.
func (r *PgxQuotaRepository) GetOrCreateQuotas(ctx context.Context, defaults domain.AgentQuotas) (*domain.AgentQuotas, error) {
	m := mapping.ToModelAgentQuotas(defaults)
	query := `
		INSERT INTO agent_quotas (` + quotaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (user_id) DO NOTHING;
	`
	_, err := r.Pool.Exec(ctx, query,
		m.UserID,
		m.DailyInvoiceLimit,
		m.DailyBillLimit,
		m.DailyJournalEntryLimit,
		m.DailyQuotationLimit,
		m.MaxInvoiceAmount,
		m.MaxBillAmount,
		m.MaxJournalEntryAmount,
		m.MaxDailyTotalAmount,
		m.MaxActionsPerMinute,
		m.MaxConcurrentWorkflows,
		m.DailyTokenLimit,
		m.EmergencyStopEnabled,
		m.EmergencyStopReason,
		m.EmergencyStoppedBy,
		m.EmergencyStoppedAt,
		m.CreatedAt,
		m.CreatedBy,
		m.LastUpdatedAt,
		m.LastUpdatedBy,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to create quotas for user "+m.UserID, err)
	}
	return r.FindQuotas(ctx, defaults.UserID)
}

// SaveQuotaLimits overwrites the numeric limits only.
func (r *PgxQuotaRepository) SaveQuotaLimits(ctx context.Context, userID string, limits domain.QuotaLimits, updatedBy string, updatedAt time.Time) error {
	query := `
		UPDATE agent_quotas
		SET daily_invoice_limit = $2, daily_bill_limit = $3, daily_journal_entry_limit = $4, daily_quotation_limit = $5,
		    max_invoice_amount = $6, max_bill_amount = $7, max_journal_entry_amount = $8, max_daily_total_amount = $9,
		    max_actions_per_minute = $10, max_concurrent_workflows = $11, daily_token_limit = $12,
		    last_updated_at = $13, last_updated_by = $14
		WHERE user_id = $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		userID,
		limits.DailyInvoiceLimit,
		limits.DailyBillLimit,
		limits.DailyJournalEntryLimit,
		limits.DailyQuotationLimit,
		limits.MaxInvoiceAmount,
		limits.MaxBillAmount,
		limits.MaxJournalEntryAmount,
		limits.MaxDailyTotalAmount,
		limits.MaxActionsPerMinute,
		limits.MaxConcurrentWorkflows,
		limits.DailyTokenLimit,
		updatedAt,
		updatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update quotas for user "+userID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetEmergencyStop records the stop with its reason and actor, or clears all three when disabling.
func (r *PgxQuotaRepository) SetEmergencyStop(ctx context.Context, userID string, enabled bool, reason, actor *string, at time.Time) error {
	query := `
		UPDATE agent_quotas
		SET emergency_stop_enabled = $2,
		    emergency_stop_reason = CASE WHEN $2 THEN $3::text ELSE NULL END,
		    emergency_stopped_by = CASE WHEN $2 THEN $4::text ELSE NULL END,
		    emergency_stopped_at = CASE WHEN $2 THEN $5::timestamptz ELSE NULL END,
		    last_updated_at = $5,
		    last_updated_by = CASE WHEN $2 AND $4::text IS NOT NULL THEN $4::text ELSE last_updated_by END
		WHERE user_id = $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, userID, enabled, reason, actor, at)
	if err != nil {
		return apperrors.NewAppError(500, "failed to set emergency stop for user "+userID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type PgxUsageRepository struct {
	BaseRepository
}

func newPgxUsageRepository(pool *pgxpool.Pool) portsrepo.UsageRepositoryWithTx {
	return &PgxUsageRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.UsageRepositoryWithTx = (*PgxUsageRepository)(nil)

const usageColumns = `
	user_id, usage_date, invoices_created, bills_created, journal_entries_created, quotations_created,
	total_actions, mutation_actions, read_actions, total_amount_processed, input_tokens, output_tokens,
	created_at, updated_at`

func scanUsage(row pgx.Row) (models.AgentUsage, error) {
	var m models.AgentUsage
	err := row.Scan(
		&m.UserID,
		&m.UsageDate,
		&m.InvoicesCreated,
		&m.BillsCreated,
		&m.JournalEntriesCreated,
		&m.QuotationsCreated,
		&m.TotalActions,
		&m.MutationActions,
		&m.ReadActions,
		&m.TotalAmountProcessed,
		&m.InputTokens,
		&m.OutputTokens,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// FindUsage retrieves the counters of a single UTC day.
func (r *PgxUsageRepository) FindUsage(ctx context.Context, userID string, day time.Time) (*domain.AgentUsage, error) {
	query := `SELECT ` + usageColumns + ` FROM agent_usage WHERE user_id = $1 AND usage_date = $2;`
	m, err := scanUsage(r.Pool.QueryRow(ctx, query, userID, domain.UTCDay(day)))
	if err != nil {
		return nil, notFoundOr(err, "failed to find usage for user "+userID)
	}
	d := mapping.ToDomainAgentUsage(m)
	return &d, nil
}

// ListUsage returns daily rows in the inclusive date range, newest first.
func (r *PgxUsageRepository) ListUsage(ctx context.Context, userID string, from, to time.Time) ([]domain.AgentUsage, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM agent_usage
		WHERE user_id = $1 AND usage_date BETWEEN $2 AND $3
		ORDER BY usage_date DESC;
	`
	rows, err := r.Pool.Query(ctx, query, userID, domain.UTCDay(from), domain.UTCDay(to))
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query usage for user "+userID, err)
	}
	defer rows.Close()

	usage := []models.AgentUsage{}
	for rows.Next() {
		m, err := scanUsage(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan usage row for user "+userID, err)
		}
		usage = append(usage, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating usage rows for user "+userID, err)
	}
	return mapping.ToDomainAgentUsageSlice(usage), nil
}

// IncrementUsage adds the delta in a single upsert so concurrent increments never lose updates.
func (r *PgxUsageRepository) IncrementUsage(ctx context.Context, userID string, day time.Time, delta domain.UsageDelta, at time.Time) (*domain.AgentUsage, error) {
	query := `
		INSERT INTO agent_usage (` + usageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (user_id, usage_date) DO UPDATE SET
			invoices_created = agent_usage.invoices_created + EXCLUDED.invoices_created,
			bills_created = agent_usage.bills_created + EXCLUDED.bills_created,
			journal_entries_created = agent_usage.journal_entries_created + EXCLUDED.journal_entries_created,
			quotations_created = agent_usage.quotations_created + EXCLUDED.quotations_created,
			total_actions = agent_usage.total_actions + EXCLUDED.total_actions,
			mutation_actions = agent_usage.mutation_actions + EXCLUDED.mutation_actions,
			read_actions = agent_usage.read_actions + EXCLUDED.read_actions,
			total_amount_processed = agent_usage.total_amount_processed + EXCLUDED.total_amount_processed,
			input_tokens = agent_usage.input_tokens + EXCLUDED.input_tokens,
			output_tokens = agent_usage.output_tokens + EXCLUDED.output_tokens,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + usageColumns + `;
	`
	m, err := scanUsage(r.Pool.QueryRow(ctx, query,
		userID,
		domain.UTCDay(day),
		delta.Invoices,
		delta.Bills,
		delta.JournalEntries,
		delta.Quotations,
		delta.TotalActions,
		delta.MutationActions,
		delta.ReadActions,
		delta.Amount,
		delta.InputTokens,
		delta.OutputTokens,
		at,
	))
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to increment usage for user "+userID, err)
	}
	d := mapping.ToDomainAgentUsage(m)
	return &d, nil
}

// ResetUsage zeroes the day's counters inside a transaction, leaving absent days absent.
func (r *PgxUsageRepository) ResetUsage(ctx context.Context, userID string, day time.Time, at time.Time) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT user_id FROM agent_usage WHERE user_id = $1 AND usage_date = $2 FOR UPDATE;`, userID, domain.UTCDay(day)).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperrors.NewAppError(500, "failed to lock usage row for user "+userID, err)
	}

	query := `
		UPDATE agent_usage
		SET invoices_created = 0, bills_created = 0, journal_entries_created = 0, quotations_created = 0,
		    total_actions = 0, mutation_actions = 0, read_actions = 0, total_amount_processed = 0,
		    input_tokens = 0, output_tokens = 0, updated_at = $3
		WHERE user_id = $1 AND usage_date = $2;
	`
	if _, err := tx.Exec(ctx, query, userID, domain.UTCDay(day), at); err != nil {
		return apperrors.NewAppError(500, "failed to reset usage for user "+userID, err)
	}
	return r.Commit(ctx, tx)
}

type PgxPlanTierRepository struct {
	BaseRepository
}

func newPgxPlanTierRepository(pool *pgxpool.Pool) portsrepo.PlanTierRepository {
	return &PgxPlanTierRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PlanTierRepository = (*PgxPlanTierRepository)(nil)

// FindPlanTier returns the user's explicit tier.
func (r *PgxPlanTierRepository) FindPlanTier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := r.Pool.QueryRow(ctx, `SELECT tier FROM user_plan_tiers WHERE user_id = $1;`, userID).Scan(&tier)
	if err != nil {
		return "", notFoundOr(err, "failed to find plan tier for user "+userID)
	}
	return tier, nil
}

// SavePlanTier assigns a tier, replacing any previous one.
func (r *PgxPlanTierRepository) SavePlanTier(ctx context.Context, userID, tier string, at time.Time) error {
	query := `
		INSERT INTO user_plan_tiers (user_id, tier, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = EXCLUDED.updated_at;
	`
	if _, err := r.Pool.Exec(ctx, query, userID, tier, at); err != nil {
		return apperrors.NewAppError(500, "failed to save plan tier for user "+userID, err)
	}
	return nil
}
