package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nexora/internal/external"
	"nexora/internal/types"
)

// TenantStore is the tenant lookup surface the checkout service needs.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
}

// CheckoutRequest starts a checkout for an existing tenant.
type CheckoutRequest struct {
	TenantID   string `json:"tenant_id"`
	PlanTier   string `json:"plan"`
	PayerEmail string `json:"payer_email"`
}

// SignupCheckoutRequest starts a checkout for a prospective tenant that does
// not exist yet. Correlation back to the signup happens through the payer
// email when the webhook arrives.
type SignupCheckoutRequest struct {
	PlanTier   string `json:"plan"`
	PayerEmail string `json:"payer_email"`
}

// BillingContext is the aggregate billing view for a tenant: the current
// subscription row, the plan limits it grants, and whether the tenant is
// entitled to use the product.
type BillingContext struct {
	Tenant       *types.Tenant       `json:"tenant"`
	Subscription *types.Subscription `json:"subscription,omitempty"`
	Limits       types.PlanLimits    `json:"limits"`
	Entitled     bool                `json:"entitled"`
}

// CheckoutService creates provider checkouts and answers billing queries.
type CheckoutService struct {
	gateway external.PaymentGateway
	plans   PlanRegistry
	intents IntentStore
	subs    SubscriptionStore
	tenants TenantStore
	logger  *slog.Logger

	// returnURL is where the provider redirects the payer after checkout.
	returnURL string
}

// NewCheckoutService creates a CheckoutService. returnURL is the absolute
// URL the provider sends the payer back to after completing checkout.
func NewCheckoutService(
	gateway external.PaymentGateway,
	plans PlanRegistry,
	intents IntentStore,
	subs SubscriptionStore,
	tenants TenantStore,
	returnURL string,
	logger *slog.Logger,
) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		gateway:   gateway,
		plans:     plans,
		intents:   intents,
		subs:      subs,
		tenants:   tenants,
		logger:    logger,
		returnURL: returnURL,
	}
}

// CreateCheckout creates a provider checkout for an existing tenant. The
// tenant id travels to the provider as external_reference so the webhook can
// correlate without relying on the payer email.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*types.CheckoutSession, error) {
	plan, email, err := s.validate(req.PlanTier, req.PayerEmail)
	if err != nil {
		return nil, err
	}
	if req.TenantID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "tenant_id is required", nil)
	}

	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	return s.createSession(ctx, tenant.ID, tenant.ID, plan, email)
}

// CreateSignupCheckout creates a provider checkout for a signup that has no
// tenant yet. A prospective tenant id is minted locally; the provider gets
// no external_reference, so the reconciler falls back to email correlation.
func (s *CheckoutService) CreateSignupCheckout(ctx context.Context, req SignupCheckoutRequest) (*types.CheckoutSession, error) {
	plan, email, err := s.validate(req.PlanTier, req.PayerEmail)
	if err != nil {
		return nil, err
	}

	prospectiveTenantID := uuid.New().String()
	return s.createSession(ctx, prospectiveTenantID, "", plan, email)
}

// createSession creates the provider preapproval and records the pending
// checkout intent. externalRef may be empty for signup checkouts.
func (s *CheckoutService) createSession(ctx context.Context, tenantID, externalRef string, plan *Plan, email string) (*types.CheckoutSession, error) {
	checkout, err := s.gateway.CreatePreapproval(ctx, external.CreatePreapprovalRequest{
		Reason:            fmt.Sprintf("Nexora %s", plan.Name),
		ExternalReference: externalRef,
		PayerEmail:        email,
		AmountCents:       plan.PriceCents,
		BackURL:           s.returnURL,
	})
	if err != nil {
		return nil, err
	}

	intent := &types.CheckoutIntent{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		PlanID:      string(plan.Tier),
		PayerEmail:  email,
		AmountCents: plan.PriceCents,
		Status:      types.IntentPending,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	s.logger.Info("checkout created",
		slog.String("intent_id", intent.ID),
		slog.String("tenant_id", tenantID),
		slog.String("plan", intent.PlanID),
	)

	return &types.CheckoutSession{
		IntentID:  intent.ID,
		TenantID:  tenantID,
		PlanID:    intent.PlanID,
		InitPoint: checkout.InitPoint,
	}, nil
}

// GetBillingContext fetches the tenant and its subscription concurrently and
// derives the plan limits and entitlement. A tenant without a subscription
// row gets the Starter limits and no entitlement.
func (s *CheckoutService) GetBillingContext(ctx context.Context, tenantID string) (*BillingContext, error) {
	var (
		tenant *types.Tenant
		sub    *types.Subscription
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tenants.GetByID(gctx, tenantID)
		if err != nil {
			return err
		}
		tenant = t
		return nil
	})
	g.Go(func() error {
		found, err := s.subs.GetByTenant(gctx, tenantID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		sub = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bctx := &BillingContext{
		Tenant:       tenant,
		Subscription: sub,
		Limits:       s.plans.GetLimits(types.PlanStarter),
	}
	if sub != nil {
		bctx.Entitled = sub.Status.IsEntitled()
		if sub.PlanID != nil {
			bctx.Limits = s.plans.GetLimits(types.PlanTier(*sub.PlanID))
		}
	}
	return bctx, nil
}

// validate checks the plan tier and payer email shared by both checkout
// entry points.
func (s *CheckoutService) validate(tier, email string) (*Plan, string, error) {
	plan := s.plans.GetPlan(types.PlanTier(tier))
	if plan == nil {
		return nil, "", types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("unknown plan %q", tier),
			nil,
		)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", types.NewAppError(types.ErrCodeValidationInvalidEmail, "a valid payer email is required", nil)
	}

	return plan, email, nil
}
