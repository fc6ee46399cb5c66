package plans_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/agent_governance/internal/adapters/plans"
	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/repositories/database/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Embedded(t *testing.T) {
	catalog, err := plans.LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, []string{"enterprise", "free", "pro"}, catalog.TierNames())

	free, ok := catalog.Tier("free")
	require.True(t, ok)
	assert.Equal(t, 10, free.DailyInvoiceLimit)
	assert.True(t, decimal.NewFromInt(5000).Equal(free.MaxInvoiceAmount))
	assert.Equal(t, int64(100000), free.DailyTokenLimit)
}

func TestParseCatalog(t *testing.T) {
	t.Run("clamps out of range values", func(t *testing.T) {
		catalog, err := plans.ParseCatalog([]byte(`
tiers:
  tiny:
    daily_invoice_limit: 0
    max_actions_per_minute: 500
    daily_token_limit: 10
`))
		require.NoError(t, err)
		tiny, ok := catalog.Tier("tiny")
		require.True(t, ok)
		assert.Equal(t, 1, tiny.DailyInvoiceLimit)
		assert.Equal(t, 100, tiny.MaxActionsPerMinute)
		assert.Equal(t, int64(1000), tiny.DailyTokenLimit)
		assert.True(t, decimal.NewFromInt(1).Equal(tiny.MaxBillAmount))
	})

	t.Run("empty catalog", func(t *testing.T) {
		_, err := plans.ParseCatalog([]byte("tiers: {}"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := plans.ParseCatalog([]byte("tiers: ["))
		assert.Error(t, err)
	})
}

func TestCatalogProvider(t *testing.T) {
	ctx := context.Background()
	catalog, err := plans.LoadCatalog("")
	require.NoError(t, err)
	tiers := memory.NewPlanTierRepository()

	_, err = plans.NewCatalogProvider(catalog, tiers, "platinum")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	provider, err := plans.NewCatalogProvider(catalog, tiers, "free")
	require.NoError(t, err)

	limits, err := provider.EffectivePlanQuotas(ctx, "user-without-tier")
	require.NoError(t, err)
	assert.Equal(t, 2, limits.MaxConcurrentWorkflows)

	require.NoError(t, tiers.SavePlanTier(ctx, "pro-user", "pro", time.Now()))
	limits, err = provider.EffectivePlanQuotas(ctx, "pro-user")
	require.NoError(t, err)
	assert.Equal(t, 5, limits.MaxConcurrentWorkflows)

	require.NoError(t, tiers.SavePlanTier(ctx, "legacy-user", "gold", time.Now()))
	_, err = provider.EffectivePlanQuotas(ctx, "legacy-user")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
