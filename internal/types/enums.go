package types

// SubscriptionStatus represents the local lifecycle state of a tenant's
// subscription. Provider statuses are mapped onto this set; the mapping is
// total, so every provider string lands on exactly one of these values.
type SubscriptionStatus string

const (
	SubStatusActive     SubscriptionStatus = "active"
	SubStatusTrialing   SubscriptionStatus = "trialing"
	SubStatusPastDue    SubscriptionStatus = "past_due"
	SubStatusCanceled   SubscriptionStatus = "canceled"
	SubStatusIncomplete SubscriptionStatus = "incomplete"
	SubStatusUnpaid     SubscriptionStatus = "unpaid"
)

// IsEntitled reports whether the status grants access to paid features.
func (s SubscriptionStatus) IsEntitled() bool {
	return s == SubStatusActive || s == SubStatusTrialing
}

// IntentStatus represents the lifecycle state of a checkout intent.
// Intents start pending and settle exactly once to paid or canceled.
type IntentStatus string

const (
	IntentPending  IntentStatus = "pending"
	IntentPaid     IntentStatus = "paid"
	IntentCanceled IntentStatus = "canceled"
)

// PlanTier identifies the billing plan for a tenant.
type PlanTier string

const (
	PlanStarter PlanTier = "starter"
	PlanPro     PlanTier = "pro"
)

// ProviderMercadoPago is the value stored in the subscription provider column.
// It is the only provider this service writes; the column exists so rows are
// self-describing if another provider is ever added.
const ProviderMercadoPago = "mercadopago"

// WebhookTopic identifies the notification topic reported by the provider.
type WebhookTopic string

const (
	TopicSubscriptionPreapproval WebhookTopic = "subscription_preapproval"
	TopicPreapproval             WebhookTopic = "preapproval"
	TopicAuthorizedPayment       WebhookTopic = "subscription_authorized_payment"
)

// CarriesPreapprovalID reports whether the topic's notification id refers
// directly to a preapproval. Authorized-payment topics carry a payment id
// that must be translated to its parent preapproval first.
func (t WebhookTopic) CarriesPreapprovalID() bool {
	return t == TopicSubscriptionPreapproval || t == TopicPreapproval
}

// Handled reports whether this service reconciles notifications for the topic.
func (t WebhookTopic) Handled() bool {
	return t.CarriesPreapprovalID() || t == TopicAuthorizedPayment
}
