// Package billing provides plan management, subscription reconciliation, and
// checkout domain logic.
package billing

import (
	"nexora/internal/types"
)

// Plan describes a sellable subscription tier: its display name, monthly
// price, and the resource limits the tier grants.
type Plan struct {
	Tier       types.PlanTier
	Name       string
	PriceCents int64
	Limits     types.PlanLimits
}

// PlanRegistry defines the authoritative catalog of sellable plans.
// This is the single source of truth for what each plan costs and allows.
type PlanRegistry interface {
	// GetPlan returns the plan for the given tier, or nil when the tier
	// is unknown.
	GetPlan(tier types.PlanTier) *Plan

	// GetLimits returns the resource limits for the given plan tier.
	// Unknown tiers get the most restrictive (Starter) limits to fail
	// safely.
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	plans map[types.PlanTier]Plan
}

// planDefaults defines the hardcoded plan catalog.
// Zero limits mean "unlimited"; enforcement code must treat 0 as no limit.
var planDefaults = map[types.PlanTier]Plan{
	types.PlanStarter: {
		Tier:       types.PlanStarter,
		Name:       "Starter",
		PriceCents: 7900,
		Limits: types.PlanLimits{
			MaxMembers:      2,
			MaxProducts:     100,
			FinancialModule: false,
		},
	},
	types.PlanPro: {
		Tier:       types.PlanPro,
		Name:       "Pro",
		PriceCents: 14900,
		Limits: types.PlanLimits{
			MaxMembers:      0,
			MaxProducts:     0,
			FinancialModule: true,
		},
	},
}

// starterLimits is cached to avoid map lookups on the fallback path.
var starterLimits = planDefaults[types.PlanStarter].Limits

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// catalog. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]Plan, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{plans: m}
}

// GetPlan returns the plan for the given tier, or nil for unknown tiers.
func (r *staticPlanRegistry) GetPlan(tier types.PlanTier) *Plan {
	if plan, ok := r.plans[tier]; ok {
		return &plan
	}
	return nil
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown, it returns the Starter tier limits as a safe default.
func (r *staticPlanRegistry) GetLimits(tier types.PlanTier) types.PlanLimits {
	if plan, ok := r.plans[tier]; ok {
		return plan.Limits
	}
	return starterLimits
}
