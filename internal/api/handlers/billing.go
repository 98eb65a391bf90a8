// This file implements the synchronous billing endpoints consumed by the ERP
// backend: checkout session creation (tenant-scoped and public signup) and
// the aggregate billing context read used for entitlement gating.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexora/internal/billing"
	"nexora/internal/core"
	"nexora/internal/types"
)

// --- Service Interfaces ---
//
// These interfaces are defined locally to follow the handler pattern: declare
// the service contract in the handler file and inject implementations via the
// constructor. This avoids coupling to concrete types and enables test mocking.

// CheckoutManager abstracts the checkout and billing-context operations of
// billing.CheckoutService.
type CheckoutManager interface {
	// CreateCheckout starts a checkout for an existing tenant.
	CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*types.CheckoutSession, error)

	// CreateSignupCheckout starts a checkout for a prospective tenant.
	CreateSignupCheckout(ctx context.Context, req billing.SignupCheckoutRequest) (*types.CheckoutSession, error)

	// GetBillingContext returns the aggregate billing view for a tenant.
	GetBillingContext(ctx context.Context, tenantID string) (*billing.BillingContext, error)
}

// --- Request Models ---

// CreateCheckoutRequest is the request body for POST /v1/billing/checkout.
type CreateCheckoutRequest struct {
	TenantID   string `json:"tenant_id" validate:"required"`
	Plan       string `json:"plan" validate:"required,oneof=starter pro"`
	PayerEmail string `json:"payer_email" validate:"required,email"`
}

// CreateSignupCheckoutRequest is the request body for POST /v1/signup/checkout.
// There is no tenant yet; correlation happens by payer email once the
// provider webhook arrives.
type CreateSignupCheckoutRequest struct {
	Plan       string `json:"plan" validate:"required,oneof=starter pro"`
	PayerEmail string `json:"payer_email" validate:"required,email"`
}

// --- Billing Handler ---

// BillingHandler handles synchronous billing actions initiated by the ERP
// backend on behalf of its users.
type BillingHandler struct {
	service   CheckoutManager
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a new BillingHandler with the provided dependencies.
func NewBillingHandler(svc CheckoutManager, v *core.Validator, l *slog.Logger) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		service:   svc,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the billing endpoints on the versioned router.
// The tenant-scoped routes require service authentication; the signup
// checkout is public because it runs before any tenant exists.
func (h *BillingHandler) RegisterRoutes(auth func(http.Handler) http.Handler) core.RouteRegistrar {
	return func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/billing/checkout", h.CreateCheckout)
			r.Get("/billing/subscription", h.GetBillingContext)
		})
		r.Post("/signup/checkout", h.CreateSignupCheckout)
	}
}

// CreateCheckout handles POST /v1/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.service.CreateCheckout(r.Context(), billing.CheckoutRequest{
		TenantID:   req.TenantID,
		PlanTier:   req.Plan,
		PayerEmail: req.PayerEmail,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout",
			"tenant_id", req.TenantID,
			"plan", req.Plan,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: session})
}

// CreateSignupCheckout handles POST /v1/signup/checkout.
func (h *BillingHandler) CreateSignupCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateSignupCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.service.CreateSignupCheckout(r.Context(), billing.SignupCheckoutRequest{
		PlanTier:   req.Plan,
		PayerEmail: req.PayerEmail,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create signup checkout",
			"plan", req.Plan,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: session})
}

// GetBillingContext handles GET /v1/billing/subscription?tenant_id=<id>.
func (h *BillingHandler) GetBillingContext(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"tenant_id query parameter is required",
			nil,
		))
		return
	}

	bc, err := h.service.GetBillingContext(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: bc})
}
