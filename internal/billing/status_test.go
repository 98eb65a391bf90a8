package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nexora/internal/types"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     types.SubscriptionStatus
	}{
		{"authorized", types.SubStatusActive},
		{"active", types.SubStatusActive},
		{"paused", types.SubStatusPastDue},
		{"cancelled", types.SubStatusCanceled},
		{"canceled", types.SubStatusCanceled},
		{"pending", types.SubStatusIncomplete},
		{"", types.SubStatusIncomplete},
		{"suspended", types.SubStatusUnpaid},
		{"something_new", types.SubStatusUnpaid},
		// Matching is case-insensitive.
		{"AUTHORIZED", types.SubStatusActive},
		{"Cancelled", types.SubStatusCanceled},
	}

	for _, tc := range tests {
		t.Run("status_"+tc.provider, func(t *testing.T) {
			assert.Equal(t, tc.want, MapProviderStatus(tc.provider))
		})
	}
}
