package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"nexora/internal/external"
	"nexora/internal/types"
)

// defaultPeriodLength is used for the current period end when the provider
// snapshot carries no recurrence dates.
const defaultPeriodLength = 30 * 24 * time.Hour

// SubscriptionStore is the subscription persistence surface the reconciler needs.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *types.Subscription) error
	GetByTenant(ctx context.Context, tenantID string) (*types.Subscription, error)
}

// IntentStore is the checkout-intent persistence surface the reconciler needs.
type IntentStore interface {
	Create(ctx context.Context, intent *types.CheckoutIntent) error
	LatestByEmail(ctx context.Context, email string) (*types.CheckoutIntent, error)
	LatestByTenant(ctx context.Context, tenantID string) (*types.CheckoutIntent, error)
	MarkPaid(ctx context.Context, email string, paidAt time.Time, providerRef string) (bool, error)
	MarkCanceled(ctx context.Context, email string) (bool, error)
}

// Reconciler rebuilds the local subscription row for a tenant from a fresh
// provider snapshot. It is stateless: every invocation fetches the current
// remote state and overwrites the whole local row, so replays and
// out-of-order deliveries converge on whatever the provider says now.
type Reconciler struct {
	gateway external.PaymentGateway
	subs    SubscriptionStore
	intents IntentStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a Reconciler. A nil logger falls back to slog.Default.
func NewReconciler(gateway external.PaymentGateway, subs SubscriptionStore, intents IntentStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		gateway: gateway,
		subs:    subs,
		intents: intents,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock. For tests.
func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile fetches the preapproval identified by preapprovalID and writes
// the derived subscription state locally. A fetch failure is returned to the
// caller so the webhook request fails and the provider redelivers; there is
// no retry here.
//
// When neither the provider's external_reference nor a checkout intent for
// the payer email correlates to a tenant, the notification is dropped with
// a log line and no error.
func (r *Reconciler) Reconcile(ctx context.Context, preapprovalID string) error {
	snap, err := r.gateway.GetPreapproval(ctx, preapprovalID)
	if err != nil {
		return err
	}

	status := MapProviderStatus(snap.Status)
	email := strings.ToLower(strings.TrimSpace(snap.PayerEmail))
	logger := r.logger.With(
		slog.String("preapproval_id", snap.ID),
		slog.String("provider_status", snap.Status),
		slog.String("status", string(status)),
	)

	tenantID, planID, err := r.correlate(ctx, snap, email)
	if err != nil {
		return err
	}

	// Intents settle by payer email even when no tenant correlates, so a
	// checkout that activates before the tenant exists is not lost.
	if err := r.settleIntents(ctx, logger, snap, status, email); err != nil {
		return err
	}

	if tenantID == "" {
		logger.Warn("no tenant correlated for notification, dropping")
		return nil
	}

	sub := &types.Subscription{
		TenantID:               tenantID,
		PlanID:                 planID,
		Provider:               types.ProviderMercadoPago,
		ProviderSubscriptionID: snap.ID,
		Status:                 status,
		CancelAtPeriodEnd:      status == types.SubStatusCanceled,
	}

	// Period bounds are only meaningful while the subscription is active.
	if status == types.SubStatusActive {
		start := r.now()
		if snap.PeriodStart != nil {
			start = *snap.PeriodStart
		}
		end := r.now().Add(defaultPeriodLength)
		if snap.PeriodEnd != nil {
			end = *snap.PeriodEnd
		}
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
	}

	if err := r.subs.Upsert(ctx, sub); err != nil {
		return err
	}

	logger.Info("subscription reconciled", slog.String("tenant_id", tenantID))
	return nil
}

// correlate resolves the tenant the snapshot belongs to. The provider's
// external_reference carries the tenant id for checkouts started from inside
// the app; public signups have none, so the latest checkout intent for the
// payer email stands in. The plan comes from the matching intent either way.
func (r *Reconciler) correlate(ctx context.Context, snap *types.PreapprovalSnapshot, email string) (tenantID string, planID *string, err error) {
	if ref := strings.TrimSpace(snap.ExternalReference); ref != "" {
		intent, err := r.intents.LatestByTenant(ctx, ref)
		if err != nil {
			if isNotFound(err) {
				return ref, nil, nil
			}
			return "", nil, err
		}
		return ref, &intent.PlanID, nil
	}

	if email == "" {
		return "", nil, nil
	}

	intent, err := r.intents.LatestByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	return intent.TenantID, &intent.PlanID, nil
}

// settleIntents transitions pending checkout intents for the payer email.
// Activation marks them paid with the provider reference; cancellation marks
// them canceled. Both updates filter on pending status, so already settled
// intents are never rewritten.
func (r *Reconciler) settleIntents(ctx context.Context, logger *slog.Logger, snap *types.PreapprovalSnapshot, status types.SubscriptionStatus, email string) error {
	if email == "" {
		return nil
	}

	switch status {
	case types.SubStatusActive:
		settled, err := r.intents.MarkPaid(ctx, email, r.now(), "mp:"+snap.ID)
		if err != nil {
			return err
		}
		if settled {
			logger.Info("checkout intents settled as paid")
		}
	case types.SubStatusCanceled:
		settled, err := r.intents.MarkCanceled(ctx, email)
		if err != nil {
			return err
		}
		if settled {
			logger.Info("checkout intents settled as canceled")
		}
	}
	return nil
}

// isNotFound reports whether err is an AppError in the not-found class.
func isNotFound(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), "not_found_")
}
