// Package handlers contains the HTTP handler implementations for the Nexora
// billing API.
//
// This file implements the Mercado Pago webhook endpoint. The route is NOT
// behind the service auth middleware: it is called directly by the provider
// and carries its own two gates (a shared query token and an HMAC-SHA256
// signature over the notification manifest).
//
// Response bodies on this route are fixed provider contracts. The provider
// redelivers on any non-2xx, so a 500 here is the retry mechanism: the
// handler never retries upstream calls itself.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexora/internal/billing"
	"nexora/internal/external"
	"nexora/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a webhook payload (64 KB).
// Provider notifications are small id-bearing envelopes; this limit protects
// against abuse.
const maxWebhookBodySize = 64 * 1024

// SubscriptionReconciler drives subscription state from a preapproval id.
// This is the subset of billing.Reconciler the webhook handler needs.
type SubscriptionReconciler interface {
	Reconcile(ctx context.Context, preapprovalID string) error
}

// PreapprovalResolver translates an authorized-payment id to its parent
// preapproval. This is the subset of external.PaymentGateway the webhook
// handler needs.
type PreapprovalResolver interface {
	GetAuthorizedPayment(ctx context.Context, id string) (*external.AuthorizedPayment, error)
}

// MercadoPagoWebhookHandler handles asynchronous notifications from
// Mercado Pago.
type MercadoPagoWebhookHandler struct {
	reconciler SubscriptionReconciler
	resolver   PreapprovalResolver
	verifier   external.WebhookVerifier
	token      string
	secret     string
	logger     *slog.Logger
}

// NewMercadoPagoWebhookHandler creates the webhook handler. An empty token
// disables the query token gate; an empty secret disables the signature gate.
func NewMercadoPagoWebhookHandler(
	reconciler SubscriptionReconciler,
	resolver PreapprovalResolver,
	verifier external.WebhookVerifier,
	token string,
	secret string,
	logger *slog.Logger,
) *MercadoPagoWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MercadoPagoWebhookHandler{
		reconciler: reconciler,
		resolver:   resolver,
		verifier:   verifier,
		token:      token,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. This is kept separate from
// BillingHandler.RegisterRoutes because the webhook path is public and lives
// outside the versioned API tree: the URL is registered with the provider
// and must stay stable.
func (h *MercadoPagoWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/mercadopago", h.Handle)
	r.Get("/webhooks/mercadopago", h.HandleStatus)
}

// Handle processes an incoming provider notification.
//
// The flow, in order:
//  1. Token gate: compare the ?token= query parameter against the shared
//     webhook token in constant time. Mismatch is 401.
//  2. Classify the payload tolerantly; a notification with no extractable
//     id is acknowledged with 200 so the provider stops redelivering it.
//  3. Signature gate: verify the x-signature header over the manifest built
//     from the extracted id, x-request-id and ts. Runs after id extraction
//     because the manifest needs the id. Failure is 401.
//  4. Authorized-payment topics are translated to their parent preapproval
//     via the provider API.
//  5. Reconcile subscription state from the preapproval id. Any failure is
//     a 500 so the provider redelivers the notification later.
func (h *MercadoPagoWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Step 1: Token gate.
	if h.token != "" {
		provided := r.URL.Query().Get("token")
		if !external.SecureTokenEqual(provided, h.token) {
			h.logger.WarnContext(ctx, "webhook token mismatch",
				"code", string(types.ErrCodeAuthWebhookToken),
			)
			writeWebhookJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized."})
			return
		}
	}

	// Step 2: Classify. Read failures and malformed JSON degrade to an
	// empty payload rather than rejecting; ids may still arrive via query.
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		body = nil
	}

	note := billing.ClassifyNotification(body, r.URL.Query())
	if note.ID == "" {
		h.logger.InfoContext(ctx, "webhook carried no resource id, acknowledging",
			"topic", string(note.Topic),
		)
		writeWebhookJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	// Step 3: Signature gate.
	if h.secret != "" {
		sigErr := h.verifier.Verify(
			note.ID,
			r.Header.Get("x-request-id"),
			r.Header.Get("x-signature"),
			h.secret,
		)
		if sigErr != nil {
			h.logger.WarnContext(ctx, "webhook signature verification failed",
				"notification_id", note.ID,
				"error", sigErr,
			)
			writeWebhookJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized."})
			return
		}
	}

	h.logger.InfoContext(ctx, "processing mercadopago webhook",
		"topic", string(note.Topic),
		"notification_id", note.ID,
	)

	// Step 4: Translate authorized payments to their parent preapproval.
	preapprovalID := note.ID
	switch {
	case note.Topic == types.TopicAuthorizedPayment:
		payment, payErr := h.resolver.GetAuthorizedPayment(ctx, note.ID)
		if payErr != nil {
			h.logger.ErrorContext(ctx, "failed to fetch authorized payment",
				"payment_id", note.ID,
				"error", payErr,
			)
			writeWebhookJSON(w, http.StatusInternalServerError, map[string]any{"error": webhookErrorMessage(payErr)})
			return
		}
		if payment.PreapprovalID == "" {
			h.logger.InfoContext(ctx, "authorized payment has no preapproval, acknowledging",
				"payment_id", note.ID,
			)
			writeWebhookJSON(w, http.StatusOK, map[string]any{"received": true})
			return
		}
		preapprovalID = payment.PreapprovalID

	case !note.Topic.Handled():
		h.logger.InfoContext(ctx, "ignoring unhandled webhook topic",
			"topic", string(note.Topic),
		)
		writeWebhookJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	// Step 5: Reconcile.
	if err := h.reconciler.Reconcile(ctx, preapprovalID); err != nil {
		h.logger.ErrorContext(ctx, "webhook reconciliation failed",
			"preapproval_id", preapprovalID,
			"error", err,
		)
		writeWebhookJSON(w, http.StatusInternalServerError, map[string]any{"error": webhookErrorMessage(err)})
		return
	}

	writeWebhookJSON(w, http.StatusOK, map[string]any{"received": true})
}

// HandleStatus responds to provider endpoint verification pings.
func (h *MercadoPagoWebhookHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeWebhookJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeWebhookJSON writes a raw JSON body. The webhook route deliberately
// bypasses the core response envelope: the provider expects these exact
// shapes, not {"data": ...} wrappers.
func writeWebhookJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// webhookErrorMessage extracts a human-readable message for the 500 body.
func webhookErrorMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
