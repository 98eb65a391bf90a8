package types

import "time"

// Tenant represents a billable company account in the ERP.
type Tenant struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	OwnerEmail string    `json:"owner_email" db:"owner_email"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Subscription is the local mirror of a tenant's provider subscription.
// There is at most one row per tenant; reconciliation overwrites the whole
// row from the latest provider snapshot.
type Subscription struct {
	TenantID               string             `json:"tenant_id" db:"tenant_id"`
	PlanID                 *string            `json:"plan_id,omitempty" db:"plan_id"`
	Provider               string             `json:"provider" db:"provider"`
	ProviderSubscriptionID string             `json:"provider_subscription_id" db:"provider_subscription_id"`
	Status                 SubscriptionStatus `json:"status" db:"status"`

	// Period bounds are persisted only while the subscription is active.
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty" db:"current_period_end"`

	CancelAtPeriodEnd bool      `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// CheckoutIntent records a purchase attempt created when a checkout link is
// issued. The webhook flow settles it to paid or canceled; email is the
// correlation key for public signups that have no tenant id at the provider.
type CheckoutIntent struct {
	ID          string       `json:"id" db:"id"`
	TenantID    string       `json:"tenant_id" db:"tenant_id"`
	PlanID      string       `json:"plan_id" db:"plan_id"`
	PayerEmail  string       `json:"payer_email" db:"payer_email"`
	AmountCents int64        `json:"amount_cents" db:"amount_cents"`
	Status      IntentStatus `json:"status" db:"status"`

	// ProviderRef is set when the intent settles to paid. It stores the
	// provider subscription reference in the form "mp:<preapproval-id>".
	ProviderRef string     `json:"provider_ref,omitempty" db:"provider_ref"`
	PaidAt      *time.Time `json:"paid_at,omitempty" db:"paid_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PlanLimits defines the resource constraints attached to a billing plan.
// A zero limit means unlimited; the ERP backend applies the limits against
// its own member and product counts.
type PlanLimits struct {
	MaxMembers      int  `json:"max_members"`
	MaxProducts     int  `json:"max_products"`
	FinancialModule bool `json:"financial_module"`
}

// PreapprovalSnapshot is the subset of the provider's preapproval object the
// reconciler consumes. Built by the external layer from the provider response.
type PreapprovalSnapshot struct {
	ID                string
	Status            string
	PayerEmail        string
	ExternalReference string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
}

// CheckoutSession is the outcome of creating a provider checkout: the intent
// recorded locally plus the URL the payer is redirected to.
type CheckoutSession struct {
	IntentID  string `json:"intent_id"`
	TenantID  string `json:"tenant_id"`
	PlanID    string `json:"plan_id"`
	InitPoint string `json:"init_point"`
}
