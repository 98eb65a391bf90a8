package billing

import (
	"strings"

	"nexora/internal/types"
)

// MapProviderStatus translates a Mercado Pago preapproval status into the
// local subscription status. The mapping is total: any provider status,
// including ones introduced after this code was written, maps to something.
func MapProviderStatus(providerStatus string) types.SubscriptionStatus {
	switch strings.ToLower(providerStatus) {
	case "authorized", "active":
		return types.SubStatusActive
	case "paused":
		return types.SubStatusPastDue
	case "cancelled", "canceled":
		return types.SubStatusCanceled
	case "pending", "":
		return types.SubStatusIncomplete
	default:
		return types.SubStatusUnpaid
	}
}
