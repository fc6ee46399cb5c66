package mapping

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/models"
)

// ToModelAuditFields converts a domain AuditFields to a model AuditFields
func ToModelAuditFields(d domain.AuditFields) models.AuditFields {
	return models.AuditFields{
		CreatedAt:     d.CreatedAt,
		CreatedBy:     d.CreatedBy,
		LastUpdatedAt: d.LastUpdatedAt,
		LastUpdatedBy: d.LastUpdatedBy,
	}
}

// ToDomainAuditFields converts a model AuditFields to a domain AuditFields
func ToDomainAuditFields(m models.AuditFields) domain.AuditFields {
	return domain.AuditFields{
		CreatedAt:     m.CreatedAt,
		CreatedBy:     m.CreatedBy,
		LastUpdatedAt: m.LastUpdatedAt,
		LastUpdatedBy: m.LastUpdatedBy,
	}
}

// ToModelFinancialImpact flattens an optional impact into its nullable columns.
func ToModelFinancialImpact(d *domain.FinancialImpact) models.FinancialImpact {
	if d == nil {
		return models.FinancialImpact{}
	}
	currency := d.Currency
	direction := string(d.Direction)
	return models.FinancialImpact{
		Amount:           decimalNull(d.Amount),
		Currency:         &currency,
		Direction:        &direction,
		AccountsAffected: d.AccountsAffected,
	}
}

// ToDomainFinancialImpact returns nil when no amount was stored.
func ToDomainFinancialImpact(m models.FinancialImpact) *domain.FinancialImpact {
	if !m.Amount.Valid {
		return nil
	}
	impact := &domain.FinancialImpact{
		Amount:           m.Amount.Decimal,
		AccountsAffected: m.AccountsAffected,
	}
	if m.Currency != nil {
		impact.Currency = *m.Currency
	}
	if m.Direction != nil {
		impact.Direction = domain.ImpactDirection(*m.Direction)
	}
	return impact
}
