package billing

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"nexora/internal/types"
)

func TestClassifyNotification(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		query     url.Values
		wantTopic types.WebhookTopic
		wantID    string
	}{
		{
			name:      "type with nested data id",
			body:      `{"type": "subscription_preapproval", "data": {"id": "pre-1"}}`,
			wantTopic: types.TopicSubscriptionPreapproval,
			wantID:    "pre-1",
		},
		{
			name:      "topic field when type absent",
			body:      `{"topic": "preapproval", "id": "pre-2"}`,
			wantTopic: types.TopicPreapproval,
			wantID:    "pre-2",
		},
		{
			name:      "type wins over topic",
			body:      `{"type": "subscription_preapproval", "topic": "payment", "data": {"id": "pre-3"}}`,
			wantTopic: types.TopicSubscriptionPreapproval,
			wantID:    "pre-3",
		},
		{
			name:      "numeric id coerced to string",
			body:      `{"type": "subscription_authorized_payment", "data": {"id": 12345}}`,
			wantTopic: types.TopicAuthorizedPayment,
			wantID:    "12345",
		},
		{
			name:      "nested data id wins over top-level id",
			body:      `{"type": "preapproval", "id": "outer", "data": {"id": "inner"}}`,
			wantTopic: types.TopicPreapproval,
			wantID:    "inner",
		},
		{
			name:      "query data.id fallback",
			body:      `{"type": "preapproval"}`,
			query:     url.Values{"data.id": {"pre-q1"}},
			wantTopic: types.TopicPreapproval,
			wantID:    "pre-q1",
		},
		{
			name:      "query id fallback",
			body:      `{"topic": "preapproval"}`,
			query:     url.Values{"id": {"pre-q2"}},
			wantTopic: types.TopicPreapproval,
			wantID:    "pre-q2",
		},
		{
			name:      "query topic and id when body malformed",
			body:      `not json`,
			query:     url.Values{"topic": {"preapproval"}, "id": {"pre-q3"}},
			wantTopic: types.TopicPreapproval,
			wantID:    "pre-q3",
		},
		{
			name:      "query type wins over query topic",
			body:      "",
			query:     url.Values{"type": {"subscription_preapproval"}, "topic": {"payment"}, "data.id": {"pre-q4"}},
			wantTopic: types.TopicSubscriptionPreapproval,
			wantID:    "pre-q4",
		},
		{
			name:      "resource url trailing segment",
			body:      `{"topic": "preapproval", "resource": "https://api.mercadopago.com/preapproval/pre-r1"}`,
			wantTopic: types.TopicPreapproval,
			wantID:    "pre-r1",
		},
		{
			name:   "empty body",
			body:   "",
			wantID: "",
		},
		{
			name:   "malformed body treated as empty",
			body:   `{"type": "subscription_preapproval", "data"`,
			wantID: "",
		},
		{
			name:      "unknown topic still classified",
			body:      `{"type": "payment", "data": {"id": "pay-1"}}`,
			wantTopic: types.WebhookTopic("payment"),
			wantID:    "pay-1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			query := tc.query
			if query == nil {
				query = url.Values{}
			}
			got := ClassifyNotification([]byte(tc.body), query)
			assert.Equal(t, tc.wantTopic, got.Topic)
			assert.Equal(t, tc.wantID, got.ID)
		})
	}
}

func TestTopicHandling(t *testing.T) {
	assert.True(t, types.TopicSubscriptionPreapproval.Handled())
	assert.True(t, types.TopicPreapproval.Handled())
	assert.True(t, types.TopicAuthorizedPayment.Handled())
	assert.False(t, types.WebhookTopic("payment").Handled())
	assert.False(t, types.WebhookTopic("").Handled())

	assert.True(t, types.TopicPreapproval.CarriesPreapprovalID())
	assert.False(t, types.TopicAuthorizedPayment.CarriesPreapprovalID())
}
