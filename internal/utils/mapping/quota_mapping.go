package mapping

import (
	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/models"
)

// ToModelAgentQuotas converts domain quotas to the row model.
func ToModelAgentQuotas(d domain.AgentQuotas) models.AgentQuotas {
	return models.AgentQuotas{
		UserID:                 d.UserID,
		DailyInvoiceLimit:      d.DailyInvoiceLimit,
		DailyBillLimit:         d.DailyBillLimit,
		DailyJournalEntryLimit: d.DailyJournalEntryLimit,
		DailyQuotationLimit:    d.DailyQuotationLimit,
		MaxInvoiceAmount:       d.MaxInvoiceAmount,
		MaxBillAmount:          d.MaxBillAmount,
		MaxJournalEntryAmount:  d.MaxJournalEntryAmount,
		MaxDailyTotalAmount:    d.MaxDailyTotalAmount,
		MaxActionsPerMinute:    d.MaxActionsPerMinute,
		MaxConcurrentWorkflows: d.MaxConcurrentWorkflows,
		DailyTokenLimit:        d.DailyTokenLimit,
		EmergencyStopEnabled:   d.EmergencyStopEnabled,
		EmergencyStopReason:    d.EmergencyStopReason,
		EmergencyStoppedBy:     d.EmergencyStoppedBy,
		EmergencyStoppedAt:     d.EmergencyStoppedAt,
		AuditFields:            ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainAgentQuotas converts the row model to domain quotas.
func ToDomainAgentQuotas(m models.AgentQuotas) domain.AgentQuotas {
	return domain.AgentQuotas{
		UserID: m.UserID,
		QuotaLimits: domain.QuotaLimits{
			DailyInvoiceLimit:      m.DailyInvoiceLimit,
			DailyBillLimit:         m.DailyBillLimit,
			DailyJournalEntryLimit: m.DailyJournalEntryLimit,
			DailyQuotationLimit:    m.DailyQuotationLimit,
			MaxInvoiceAmount:       m.MaxInvoiceAmount,
			MaxBillAmount:          m.MaxBillAmount,
			MaxJournalEntryAmount:  m.MaxJournalEntryAmount,
			MaxDailyTotalAmount:    m.MaxDailyTotalAmount,
			MaxActionsPerMinute:    m.MaxActionsPerMinute,
			MaxConcurrentWorkflows: m.MaxConcurrentWorkflows,
			DailyTokenLimit:        m.DailyTokenLimit,
		},
		EmergencyStopEnabled: m.EmergencyStopEnabled,
		EmergencyStopReason:  m.EmergencyStopReason,
		EmergencyStoppedBy:   m.EmergencyStoppedBy,
		EmergencyStoppedAt:   m.EmergencyStoppedAt,
		AuditFields:          ToDomainAuditFields(m.AuditFields),
	}
}

// ToDomainAgentUsage converts a usage row to the domain type.
func ToDomainAgentUsage(m models.AgentUsage) domain.AgentUsage {
	return domain.AgentUsage{
		UserID:                m.UserID,
		UsageDate:             domain.UTCDay(m.UsageDate),
		InvoicesCreated:       m.InvoicesCreated,
		BillsCreated:          m.BillsCreated,
		JournalEntriesCreated: m.JournalEntriesCreated,
		QuotationsCreated:     m.QuotationsCreated,
		TotalActions:          m.TotalActions,
		MutationActions:       m.MutationActions,
		ReadActions:           m.ReadActions,
		TotalAmountProcessed:  m.TotalAmountProcessed,
		InputTokens:           m.InputTokens,
		OutputTokens:          m.OutputTokens,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// ToDomainAgentUsageSlice converts a slice of usage rows.
func ToDomainAgentUsageSlice(ms []models.AgentUsage) []domain.AgentUsage {
	out := make([]domain.AgentUsage, len(ms))
	for i, m := range ms {
		out[i] = ToDomainAgentUsage(m)
	}
	return out
}
