package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"nexora/internal/types"
)

// SubscriptionRepo manages the local mirror of provider subscription state.
// There is at most one subscription row per tenant; reconciliation replaces
// the whole row with the latest provider snapshot, so redelivered or
// out-of-order webhooks converge on whatever the provider reported last.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

const subColumns = `s.tenant_id, s.plan_id, s.provider, s.provider_subscription_id,
	s.status, s.current_period_start, s.current_period_end,
	s.cancel_at_period_end, s.updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	err := row.Scan(
		&sub.TenantID,
		&sub.PlanID,
		&sub.Provider,
		&sub.ProviderSubscriptionID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert writes the full subscription row keyed by tenant id. Every column
// is overwritten from the snapshot, including NULLing the period bounds when
// the snapshot carries none. Applying the same snapshot twice leaves the row
// unchanged.
func (r *SubscriptionRepo) Upsert(ctx context.Context, sub *types.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (tenant_id, plan_id, provider, provider_subscription_id,
		     status, current_period_start, current_period_end, cancel_at_period_end, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (tenant_id) DO UPDATE SET
		     plan_id = EXCLUDED.plan_id,
		     provider = EXCLUDED.provider,
		     provider_subscription_id = EXCLUDED.provider_subscription_id,
		     status = EXCLUDED.status,
		     current_period_start = EXCLUDED.current_period_start,
		     current_period_end = EXCLUDED.current_period_end,
		     cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		     updated_at = NOW()`,
		sub.TenantID,
		sub.PlanID,
		sub.Provider,
		sub.ProviderSubscriptionID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	r.logger.Info("subscription state written",
		slog.String("tenant_id", sub.TenantID),
		slog.String("status", string(sub.Status)),
		slog.String("provider_subscription_id", sub.ProviderSubscriptionID),
	)
	return nil
}

// GetByTenant retrieves the subscription row for a tenant.
// Returns ErrCodeNotFoundSubscription if the tenant has no subscription.
func (r *SubscriptionRepo) GetByTenant(ctx context.Context, tenantID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subColumns+`
		 FROM subscriptions s
		 WHERE s.tenant_id = $1`,
		tenantID,
	)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return sub, nil
}
