package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Payment provider event types. Anything else is carried through parsing as
// an unrecognized event and ignored; future provider types must never crash
// the reconciler.
const (
	eventPaymentSucceeded = "payment.succeeded"
	eventPaymentFailed    = "payment.failed"
	eventPaymentRefunded  = "payment.refunded"
)

// webhookEnvelope is the wire shape of an inbound payment event. Only
// correlation-relevant fields are extracted; unknown fields are ignored.
type webhookEnvelope struct {
	Type string      `json:"type"`
	Data webhookData `json:"data"`
}

type webhookData struct {
	PaymentID       string            `json:"payment_id"`
	Metadata        map[string]string `json:"metadata"`
	Billing         *webhookAddress   `json:"billing"`
	ShippingAddress *webhookAddress   `json:"shipping_address"`
}

type webhookAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// format renders the address as a single comma-joined line, skipping empty
// parts.
func (a *webhookAddress) format() string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// verifyWebhookSignature checks the provider's sha256=<hex> HMAC signature
// over the raw payload, in constant time.
func verifyWebhookSignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
