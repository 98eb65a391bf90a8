package external

import (
	"context"

	"nexora/internal/types"
)

// PaymentGateway abstracts interactions with the Mercado Pago preapproval
// (recurring payment) API. Implementations translate between domain types
// and the vendor's REST endpoints.
type PaymentGateway interface {
	// GetPreapproval fetches the authoritative subscription snapshot for a
	// preapproval id. Reconciliation always works from this snapshot, never
	// from the webhook payload.
	GetPreapproval(ctx context.Context, id string) (*types.PreapprovalSnapshot, error)

	// GetAuthorizedPayment fetches a recurring payment record. Used to
	// translate authorized-payment webhook ids to their parent preapproval.
	GetAuthorizedPayment(ctx context.Context, id string) (*AuthorizedPayment, error)

	// CreatePreapproval creates a checkout (pending preapproval) and returns
	// the init_point URL the payer is redirected to.
	CreatePreapproval(ctx context.Context, req CreatePreapprovalRequest) (*PreapprovalCheckout, error)
}

// AuthorizedPayment is the subset of the provider's authorized payment
// object this service consumes.
type AuthorizedPayment struct {
	ID            string `json:"id"`
	PreapprovalID string `json:"preapproval_id"`
	Status        string `json:"status"`
}

// CreatePreapprovalRequest carries the parameters for creating a checkout.
// ExternalReference is the tenant id for authenticated checkouts and empty
// for public signups, where correlation later happens by payer email.
type CreatePreapprovalRequest struct {
	Reason            string
	ExternalReference string
	PayerEmail        string
	AmountCents       int64
	CurrencyID        string
	BackURL           string
}

// PreapprovalCheckout is the result of creating a preapproval.
type PreapprovalCheckout struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// WebhookVerifier abstracts inbound webhook signature checking.
type WebhookVerifier interface {
	// Verify validates the provider signature header for a notification.
	// notificationID is the resource id extracted from the payload,
	// requestID comes from the x-request-id header, and header is the raw
	// x-signature value. Returns nil on success, an error describing the
	// failure otherwise.
	Verify(notificationID, requestID, header string, secret string) error
}
