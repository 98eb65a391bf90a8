package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"nexora/internal/types"
)

// CheckoutIntentRepo manages checkout intent records. Intents are created
// when a checkout link is issued and settled exactly once by the webhook
// flow. Settlement updates are filtered on status = 'pending', so redelivered
// webhooks that try to settle again affect zero rows and become no-ops.
type CheckoutIntentRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewCheckoutIntentRepo creates a new CheckoutIntentRepo backed by the given
// database connection (pool or transaction).
func NewCheckoutIntentRepo(db DBTX, logger *slog.Logger) *CheckoutIntentRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutIntentRepo{db: db, logger: logger}
}

const intentColumns = `i.id, i.tenant_id, i.plan_id, i.payer_email, i.amount_cents,
	i.status, i.provider_ref, i.paid_at, i.created_at, i.updated_at`

func scanIntent(row pgx.Row) (*types.CheckoutIntent, error) {
	var intent types.CheckoutIntent
	var providerRef *string
	err := row.Scan(
		&intent.ID,
		&intent.TenantID,
		&intent.PlanID,
		&intent.PayerEmail,
		&intent.AmountCents,
		&intent.Status,
		&providerRef,
		&intent.PaidAt,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if providerRef != nil {
		intent.ProviderRef = *providerRef
	}
	return &intent, nil
}

// Create inserts a new pending checkout intent. The caller must set the ID
// and required fields; email is stored lowercased for correlation lookups.
func (r *CheckoutIntentRepo) Create(ctx context.Context, intent *types.CheckoutIntent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO checkout_intents (id, tenant_id, plan_id, payer_email, amount_cents,
		     status, created_at, updated_at)
		 VALUES ($1, $2, $3, LOWER($4), $5, $6, NOW(), NOW())`,
		intent.ID,
		intent.TenantID,
		intent.PlanID,
		intent.PayerEmail,
		intent.AmountCents,
		types.IntentPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create checkout intent", err)
	}
	return nil
}

// LatestByEmail returns the newest checkout intent for a payer email,
// regardless of status. Used to correlate webhooks that arrive without an
// external reference (public signup checkouts).
// Returns ErrCodeNotFoundIntent if the email has no intents.
func (r *CheckoutIntentRepo) LatestByEmail(ctx context.Context, email string) (*types.CheckoutIntent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+intentColumns+`
		 FROM checkout_intents i
		 WHERE i.payer_email = LOWER($1)
		 ORDER BY i.created_at DESC
		 LIMIT 1`,
		email,
	)

	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "no checkout intent for email", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve checkout intent", err)
	}
	return intent, nil
}

// LatestByTenant returns the newest checkout intent for a tenant, regardless
// of status. Used to recover the purchased plan when the webhook carries an
// external reference.
// Returns ErrCodeNotFoundIntent if the tenant has no intents.
func (r *CheckoutIntentRepo) LatestByTenant(ctx context.Context, tenantID string) (*types.CheckoutIntent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+intentColumns+`
		 FROM checkout_intents i
		 WHERE i.tenant_id = $1
		 ORDER BY i.created_at DESC
		 LIMIT 1`,
		tenantID,
	)

	intent, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "no checkout intent for tenant", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve checkout intent", err)
	}
	return intent, nil
}

// MarkPaid settles all pending intents for a payer email as paid, recording
// the payment time and the provider subscription reference. Returns whether
// any row was updated; zero rows means the intents were already settled
// (idempotent no-op on redelivery).
func (r *CheckoutIntentRepo) MarkPaid(ctx context.Context, email string, paidAt time.Time, providerRef string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE checkout_intents
		 SET status = $1,
		     paid_at = $2,
		     provider_ref = $3,
		     updated_at = NOW()
		 WHERE payer_email = LOWER($4)
		   AND status = $5`,
		types.IntentPaid,
		paidAt,
		providerRef,
		email,
		types.IntentPending,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark checkout intent paid", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("no pending intent to settle as paid",
			slog.String("payer_email", email),
		)
		return false, nil
	}
	return true, nil
}

// MarkCanceled settles all pending intents for a payer email as canceled.
// Returns whether any row was updated; zero rows is an idempotent no-op.
func (r *CheckoutIntentRepo) MarkCanceled(ctx context.Context, email string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE checkout_intents
		 SET status = $1,
		     updated_at = NOW()
		 WHERE payer_email = LOWER($2)
		   AND status = $3`,
		types.IntentCanceled,
		email,
		types.IntentPending,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark checkout intent canceled", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("no pending intent to settle as canceled",
			slog.String("payer_email", email),
		)
		return false, nil
	}
	return true, nil
}
