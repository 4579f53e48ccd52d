package xgateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Webhook validation errors.
var (
	// ErrWebhookBody rejects an empty or non-JSON payload.
	ErrWebhookBody = errors.New("xgateway: webhook body is not a JSON object")

	// ErrWebhookField rejects a payload missing a required field.
	ErrWebhookField = errors.New("xgateway: webhook missing required field")

	// ErrWebhookSignature rejects a missing or mismatched signature.
	ErrWebhookSignature = errors.New("xgateway: webhook signature invalid")
)

// defaultWebhookFields are required when the validator is built without
// an explicit field list.
var defaultWebhookFields = []string{"id", "type"}

// WebhookValidator checks inbound provider notifications before they
// reach any handler: structural validation of required fields, plus
// HMAC-SHA256 signature verification whenever a secret is configured.
// An empty secret skips the cryptographic check, but only structurally
// valid payloads ever pass.
type WebhookValidator struct {
	secret   []byte
	required []string
}

// NewWebhookValidator builds a validator. secret may be empty for
// providers without signed webhooks; requiredFields defaults to
// "id" and "type" when empty.
func NewWebhookValidator(secret string, requiredFields ...string) *WebhookValidator {
	required := requiredFields
	if len(required) == 0 {
		required = defaultWebhookFields
	}
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &WebhookValidator{secret: key, required: required}
}

// Validate checks one notification and returns the decoded payload.
// signature is the hex-encoded HMAC-SHA256 of the raw body, with an
// optional "sha256=" prefix as some providers send it.
func (v *WebhookValidator) Validate(body []byte, signature string) (map[string]any, error) {
	if len(v.secret) > 0 {
		if err := v.verifySignature(body, signature); err != nil {
			return nil, err
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return nil, ErrWebhookBody
	}
	for _, field := range v.required {
		value, ok := payload[field]
		if !ok || value == nil {
			return nil, fmt.Errorf("%w: %s", ErrWebhookField, field)
		}
		if s, isString := value.(string); isString && s == "" {
			return nil, fmt.Errorf("%w: %s", ErrWebhookField, field)
		}
	}
	return payload, nil
}

func (v *WebhookValidator) verifySignature(body []byte, signature string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return ErrWebhookSignature
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrWebhookSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrWebhookSignature
	}
	return nil
}
