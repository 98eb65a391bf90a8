package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexora/internal/types"
)

func TestGetPlan_Catalog(t *testing.T) {
	registry := NewStaticPlanRegistry()

	starter := registry.GetPlan(types.PlanStarter)
	require.NotNil(t, starter)
	assert.Equal(t, int64(7900), starter.PriceCents)
	assert.Equal(t, 2, starter.Limits.MaxMembers)
	assert.Equal(t, 100, starter.Limits.MaxProducts)
	assert.False(t, starter.Limits.FinancialModule)

	pro := registry.GetPlan(types.PlanPro)
	require.NotNil(t, pro)
	assert.Equal(t, int64(14900), pro.PriceCents)
	assert.Equal(t, 0, pro.Limits.MaxMembers)
	assert.Equal(t, 0, pro.Limits.MaxProducts)
	assert.True(t, pro.Limits.FinancialModule)
}

func TestGetPlan_UnknownTier(t *testing.T) {
	registry := NewStaticPlanRegistry()
	assert.Nil(t, registry.GetPlan(types.PlanTier("enterprise")))
}

func TestGetLimits_UnknownTierFallsBackToStarter(t *testing.T) {
	registry := NewStaticPlanRegistry()

	limits := registry.GetLimits(types.PlanTier("bogus"))
	assert.Equal(t, 2, limits.MaxMembers)
	assert.False(t, limits.FinancialModule)
}

func TestGetPlan_ReturnsCopy(t *testing.T) {
	registry := NewStaticPlanRegistry()

	plan := registry.GetPlan(types.PlanPro)
	require.NotNil(t, plan)
	plan.PriceCents = 1

	again := registry.GetPlan(types.PlanPro)
	assert.Equal(t, int64(14900), again.PriceCents)
}
