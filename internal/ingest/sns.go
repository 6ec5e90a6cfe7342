package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SNS envelope types as delivered to HTTP(S) subscriptions.
const (
	snsTypeSubscriptionConfirmation = "SubscriptionConfirmation"
	snsTypeNotification             = "Notification"
)

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicARN     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// unwrapSNS extracts the provider notification payload from a request body.
// Bodies may be an SNS envelope (Message carries the notification as a JSON
// string) or, in raw message delivery mode, the notification itself. For
// SubscriptionConfirmation envelopes it returns the subscribe URL and a nil
// payload.
func unwrapSNS(body []byte) (payload []byte, subscribeURL string, err error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case snsTypeSubscriptionConfirmation:
		return nil, env.SubscribeURL, nil
	case snsTypeNotification:
		return []byte(env.Message), "", nil
	default:
		// Raw message delivery: the body is the notification itself.
		return body, "", nil
	}
}

// confirmSubscription visits the SNS subscribe URL. SNS only requires the
// URL to be fetched; the response body is irrelevant.
func confirmSubscription(client *http.Client, subscribeURL string) error {
	if _, err := url.Parse(subscribeURL); err != nil {
		return fmt.Errorf("parse subscribe url: %w", err)
	}

	resp, err := client.Get(subscribeURL)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	return nil
}
