package billing

import (
	"encoding/json"
	"net/url"
	"strings"

	"nexora/internal/types"
)

// Notification is the classified form of an incoming provider webhook.
type Notification struct {
	// Topic is whatever the payload declared, which may be a topic this
	// service does not handle.
	Topic types.WebhookTopic

	// ID is the notification subject id: a preapproval id for preapproval
	// topics, a payment id for authorized-payment topics. Empty when the
	// payload carried no usable id.
	ID string
}

// flexID accepts an id sent either as a JSON string or a JSON number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	// Unreadable ids degrade to empty instead of failing the whole payload.
	*f = ""
	return nil
}

// notificationPayload tolerates the shapes Mercado Pago actually sends:
// "type" vs "topic", ids as strings or numbers, ids nested under data or at
// the top level, and legacy notifications that only carry a resource URL.
type notificationPayload struct {
	ID       flexID `json:"id"`
	Topic    string `json:"topic"`
	Type     string `json:"type"`
	Resource string `json:"resource"`
	Data     struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// ClassifyNotification extracts the topic and subject id from a webhook
// request body and its query parameters. A malformed body is treated as
// empty rather than rejected; the provider retries on errors, and a payload
// this service cannot read will not become readable on redelivery.
//
// Topic precedence: body "type", body "topic", query "type", query "topic".
// Id precedence: body data.id, body id, query "data.id", query "id", then
// the trailing segment of a resource URL.
func ClassifyNotification(body []byte, query url.Values) Notification {
	var payload notificationPayload
	if len(body) > 0 {
		// Decode errors leave payload zero-valued on purpose.
		_ = json.Unmarshal(body, &payload)
	}

	topic := payload.Type
	if topic == "" {
		topic = payload.Topic
	}
	if topic == "" {
		topic = query.Get("type")
	}
	if topic == "" {
		topic = query.Get("topic")
	}

	id := string(payload.Data.ID)
	if id == "" {
		id = string(payload.ID)
	}
	if id == "" {
		id = query.Get("data.id")
	}
	if id == "" {
		id = query.Get("id")
	}
	if id == "" && payload.Resource != "" {
		segments := strings.Split(payload.Resource, "/")
		id = segments[len(segments)-1]
	}

	return Notification{
		Topic: types.WebhookTopic(topic),
		ID:    strings.TrimSpace(id),
	}
}
