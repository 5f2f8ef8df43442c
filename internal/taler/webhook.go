package taler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "X-Taler-Signature"

// VerifyWebhookSignature reports whether signature equals the lowercase hex
// HMAC-SHA256 digest of body under the configured webhook secret. The
// comparison is constant time. It returns false when no secret is
// configured, so a misconfigured deployment rejects every webhook instead
// of silently accepting them.
//
// body must be the raw request bytes captured before any JSON parsing;
// re-serialization is not guaranteed to reproduce byte-identical input.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.secret == "" {
		c.logger.Error().Msg("webhook secret not configured")
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleWebhook verifies the signature and then decodes the notification.
// Verification always happens first: unverified input is never parsed.
// Failures are ErrSignatureInvalid or ErrMalformedPayload; the client does
// not act on events, dispatching is the caller's responsibility.
func (c *Client) HandleWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if !c.VerifyWebhookSignature(body, signature) {
		return nil, ErrSignatureInvalid
	}
	var payload struct {
		Type    string `json:"type"`
		OrderID string `json:"order_id"`
		Payload struct {
			OrderID string `json:"order_id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// Newer backends nest the order reference under "payload"; older ones
	// flatten it.
	orderID := strings.TrimSpace(payload.Payload.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(payload.OrderID)
	}
	eventType := strings.TrimSpace(payload.Type)
	if eventType == "" || orderID == "" {
		return nil, ErrMalformedPayload
	}
	return &WebhookEvent{Type: eventType, OrderID: orderID, Raw: rawCopy(body)}, nil
}
